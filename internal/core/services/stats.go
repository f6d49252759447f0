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

// Package services contains the business logic for interacting with data sources.
// This file implements the reporting reads over the partitioned metadata and
// analysis tables: engagement, top keywords, video duration and upload patterns.
//
// Logic Flow:
//  1. The caller picks a report and a grouping: profile, language or category.
//  2. The grouping is mapped to a fixed column expression; arbitrary input is
//     never substituted into the query.
//  3. The query is run against BigQuery and each row is decoded into the
//     report's row type.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	// DefaultMinVideos is the smallest group reported.
	DefaultMinVideos = 5
	// DefaultTopKeywords is the number of keywords kept per group.
	DefaultTopKeywords = 10
)

const (
	ReportEngagement = "engagement"
	ReportKeywords   = "keywords"
	ReportDurations  = "durations"
	ReportUploads    = "uploads"
)

var statsGroups = map[string]string{
	"profile":  "m.profile",
	"language": "a.language",
	"category": "a.category",
}

var reportQueries = map[string]string{
	ReportEngagement: QryEngagementStats,
	ReportKeywords:   QryTopKeywords,
	ReportDurations:  QryDurationStats,
	ReportUploads:    QryUploadPatterns,
}

// EngagementStats is one row of the engagement report.
type EngagementStats struct {
	Group       bigquery.NullString  `json:"group" bigquery:"group_value"`
	VideoCount  int64                `json:"video_count" bigquery:"video_count"`
	AvgViews    bigquery.NullFloat64 `json:"avg_views" bigquery:"avg_views"`
	MedianViews bigquery.NullInt64   `json:"median_views" bigquery:"median_views"`
	AvgLikes    bigquery.NullFloat64 `json:"avg_likes" bigquery:"avg_likes"`
	MedianLikes bigquery.NullInt64   `json:"median_likes" bigquery:"median_likes"`
	AvgReposts  bigquery.NullFloat64 `json:"avg_reposts" bigquery:"avg_reposts"`
	AvgComments bigquery.NullFloat64 `json:"avg_comments" bigquery:"avg_comments"`
}

// KeywordStats is one ranked keyword of a group.
type KeywordStats struct {
	Group     bigquery.NullString `json:"group" bigquery:"group_value"`
	Keyword   string              `json:"keyword" bigquery:"keyword"`
	Frequency int64               `json:"frequency" bigquery:"frequency"`
}

// DurationStats is one row of the video duration report. Durations are in
// seconds and the pct fields are percentages of VideoCount.
type DurationStats struct {
	Group          bigquery.NullString  `json:"group" bigquery:"group_value"`
	VideoCount     int64                `json:"video_count" bigquery:"video_count"`
	AvgDuration    bigquery.NullFloat64 `json:"avg_duration" bigquery:"avg_duration"`
	MedianDuration bigquery.NullFloat64 `json:"median_duration" bigquery:"median_duration"`
	MinDuration    bigquery.NullFloat64 `json:"min_duration" bigquery:"min_duration"`
	MaxDuration    bigquery.NullFloat64 `json:"max_duration" bigquery:"max_duration"`
	PctShort       bigquery.NullFloat64 `json:"pct_short" bigquery:"pct_short"`
	PctMedium      bigquery.NullFloat64 `json:"pct_medium" bigquery:"pct_medium"`
	PctLong        bigquery.NullFloat64 `json:"pct_long" bigquery:"pct_long"`
}

// UploadPatternStats is one row of the monthly upload report.
type UploadPatternStats struct {
	Group              bigquery.NullString  `json:"group" bigquery:"group_value"`
	ActiveMonths       int64                `json:"active_months" bigquery:"active_months"`
	AvgUploadsPerMonth bigquery.NullFloat64 `json:"avg_uploads_per_month" bigquery:"avg_uploads_per_month"`
	AvgLikesPerVideo   bigquery.NullFloat64 `json:"avg_likes_per_video" bigquery:"avg_likes_per_video"`
	AvgViewsPerVideo   bigquery.NullFloat64 `json:"avg_views_per_video" bigquery:"avg_views_per_video"`
}

// StatsGroups lists the supported groupings in a stable order.
func StatsGroups() []string {
	return sortedKeys(statsGroups)
}

// StatsReports lists the supported reports in a stable order.
func StatsReports() []string {
	return sortedKeys(reportQueries)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReportQuery renders the query of report for group.
//
// Inputs:
//   - report: one of StatsReports.
//   - metadataTable: the fully qualified metadata table.
//   - analysisTable: the fully qualified analysis table.
//   - group: one of StatsGroups.
//
// Outputs:
//   - string: the query text. Engagement and durations expect @min_videos and
//     keywords expects @top_n.
//   - error: ErrValidation for an unknown report or group.
func ReportQuery(report, metadataTable, analysisTable, group string) (string, error) {
	tmpl, ok := reportQueries[strings.ToLower(report)]
	if !ok {
		return "", Wrap(ErrValidation, "stats", "report", fmt.Sprintf("unknown report %q", report), nil)
	}
	expr, ok := statsGroups[strings.ToLower(group)]
	if !ok {
		return "", Wrap(ErrValidation, "stats", "group", fmt.Sprintf("unknown group %q", group), nil)
	}
	return fmt.Sprintf(tmpl, expr, metadataTable, analysisTable), nil
}

// EngagementQuery renders the engagement statistics query for group.
func EngagementQuery(metadataTable, analysisTable, group string) (string, error) {
	return ReportQuery(ReportEngagement, metadataTable, analysisTable, group)
}

// StatsService runs reporting queries against the catalog tables.
type StatsService struct {
	BigqueryClient *bigquery.Client // Client for Google BigQuery.
	DatasetName    string           // The dataset holding the stage tables.
	MetadataTable  string           // Table of the metadata stage.
	AnalysisTable  string           // Table of the analysis stage.
	MinVideos      int              // Groups with fewer videos are omitted.
	TopKeywords    int              // Keywords kept per group.
}

// Engagement returns engagement statistics grouped by group, largest first.
func (s *StatsService) Engagement(ctx context.Context, group string) ([]*EngagementStats, error) {
	return runReport[EngagementStats](ctx, s, ReportEngagement, group)
}

// Keywords returns the most frequent analysis keywords of each group.
func (s *StatsService) Keywords(ctx context.Context, group string) ([]*KeywordStats, error) {
	return runReport[KeywordStats](ctx, s, ReportKeywords, group)
}

// Durations returns video length statistics grouped by group, largest first.
func (s *StatsService) Durations(ctx context.Context, group string) ([]*DurationStats, error) {
	return runReport[DurationStats](ctx, s, ReportDurations, group)
}

// UploadPatterns returns monthly upload activity grouped by group, most
// viewed first.
func (s *StatsService) UploadPatterns(ctx context.Context, group string) ([]*UploadPatternStats, error) {
	return runReport[UploadPatternStats](ctx, s, ReportUploads, group)
}

func (s *StatsService) parameters(report string) []bigquery.QueryParameter {
	switch report {
	case ReportKeywords:
		topN := s.TopKeywords
		if topN <= 0 {
			topN = DefaultTopKeywords
		}
		return []bigquery.QueryParameter{{Name: "top_n", Value: topN}}
	case ReportUploads:
		return nil
	default:
		minVideos := s.MinVideos
		if minVideos <= 0 {
			minVideos = DefaultMinVideos
		}
		return []bigquery.QueryParameter{{Name: "min_videos", Value: minVideos}}
	}
}

func runReport[T any](ctx context.Context, s *StatsService, report, group string) ([]*T, error) {
	queryText, err := ReportQuery(report, s.fq(s.MetadataTable), s.fq(s.AnalysisTable), group)
	if err != nil {
		return nil, err
	}

	q := s.BigqueryClient.Query(queryText)
	q.Parameters = s.parameters(report)
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, Wrap(ErrTransient, "stats", "query", report, err)
	}

	out := make([]*T, 0)
	for {
		row := new(T)
		err := itr.Next(row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate results: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *StatsService) fq(table string) string {
	return strings.Replace(s.BigqueryClient.Dataset(s.DatasetName).Table(table).FullyQualifiedName(), ":", ".", -1)
}
