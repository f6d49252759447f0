// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var group string
	var report string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print " + strings.Join(services.StatsReports(), ", ") + " reports grouped by " + strings.Join(services.StatsGroups(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClients(cmd.Context(), func(config *cloud.Config, clients *cloud.ServiceClients) error {
				out, err := runStatsReport(cmd.Context(), cloud.NewStatsService(config, clients), report, group)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&report, "report", services.ReportEngagement, "Report: "+strings.Join(services.StatsReports(), ", "))
	cmd.Flags().StringVar(&group, "group", "profile", "Grouping: "+strings.Join(services.StatsGroups(), ", "))
	return cmd
}

func runStatsReport(ctx context.Context, stats *services.StatsService, report, group string) (string, error) {
	switch strings.ToLower(report) {
	case services.ReportEngagement:
		results, err := stats.Engagement(ctx, group)
		return renderStats(results), err
	case services.ReportKeywords:
		results, err := stats.Keywords(ctx, group)
		return renderKeywords(results), err
	case services.ReportDurations:
		results, err := stats.Durations(ctx, group)
		return renderDurations(results), err
	case services.ReportUploads:
		results, err := stats.UploadPatterns(ctx, group)
		return renderUploads(results), err
	}
	return "", services.Wrap(services.ErrValidation, "stats", "report", fmt.Sprintf("unknown report %q", report), nil)
}

// groupedColumns is a text group column followed by numeric value columns.
func groupedColumns(values ...string) []column {
	out := []column{{title: "Group"}}
	for _, v := range values {
		out = append(out, column{title: v, numeric: true})
	}
	return out
}

func renderStats(results []*services.EngagementStats) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			nullString(r.Group),
			strconv.FormatInt(r.VideoCount, 10),
			nullFloat(r.AvgViews),
			nullInt(r.MedianViews),
			nullFloat(r.AvgLikes),
			nullInt(r.MedianLikes),
			nullFloat(r.AvgReposts),
			nullFloat(r.AvgComments),
		})
	}
	return renderTable(groupedColumns("Videos", "Avg views", "Median views", "Avg likes", "Median likes", "Avg reposts", "Avg comments"), rows)
}

func renderKeywords(results []*services.KeywordStats) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{nullString(r.Group), r.Keyword, strconv.FormatInt(r.Frequency, 10)})
	}
	columns := []column{{title: "Group"}, {title: "Keyword"}, {title: "Frequency", numeric: true}}
	return renderTable(columns, rows)
}

func renderDurations(results []*services.DurationStats) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			nullString(r.Group),
			strconv.FormatInt(r.VideoCount, 10),
			nullFloat(r.AvgDuration),
			nullFloat(r.MedianDuration),
			nullFloat(r.MinDuration),
			nullFloat(r.MaxDuration),
			nullFloat(r.PctShort),
			nullFloat(r.PctMedium),
			nullFloat(r.PctLong),
		})
	}
	return renderTable(groupedColumns("Videos", "Avg secs", "Median secs", "Min secs", "Max secs", "% <=30s", "% 30-60s", "% >60s"), rows)
}

func renderUploads(results []*services.UploadPatternStats) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			nullString(r.Group),
			strconv.FormatInt(r.ActiveMonths, 10),
			nullFloat(r.AvgUploadsPerMonth),
			nullFloat(r.AvgLikesPerVideo),
			nullFloat(r.AvgViewsPerVideo),
		})
	}
	return renderTable(groupedColumns("Active months", "Uploads/month", "Avg likes", "Avg views"), rows)
}

func nullString(v bigquery.NullString) string {
	if !v.Valid {
		return "(none)"
	}
	return v.StringVal
}

func nullFloat(v bigquery.NullFloat64) string {
	if !v.Valid {
		return "-"
	}
	return strconv.FormatFloat(v.Float64, 'f', 1, 64)
}

func nullInt(v bigquery.NullInt64) string {
	if !v.Valid {
		return "-"
	}
	return strconv.FormatInt(v.Int64, 10)
}
