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
// This file, `queries.go`, centralizes the SQL issued to the catalog and query
// engine. The queries use `fmt.Sprintf` verbs as placeholders; string values
// must be passed through the dialect's quoting function before they are substituted.
package services

import "strings"

const (
	// QryAddPartitionHive registers a partition with a Hive compatible catalog.
	//
	// Placeholders:
	// - `%s`: database, `%s`: table, `%s`: profile, `%s`: processed_at, `%s`: location.
	QryAddPartitionHive = "ALTER TABLE %s.%s ADD IF NOT EXISTS PARTITION (profile = '%s', processed_at = '%s') LOCATION '%s'"

	// QryMergePartition records a partition in the BigQuery partition catalog
	// table. The MERGE only inserts, so an existing row is never changed.
	//
	// Placeholders:
	// - `%s`: fully qualified catalog table.
	// - `%s`: table, `%s`: profile, `%s`: processed_at, `%s`: location.
	QryMergePartition = "MERGE `%s` T USING (SELECT '%s' AS table_name, '%s' AS profile, '%s' AS processed_at, '%s' AS location) S " +
		"ON T.table_name = S.table_name AND T.profile = S.profile AND T.processed_at = S.processed_at " +
		"WHEN NOT MATCHED THEN INSERT (table_name, profile, processed_at, location, registered_at) " +
		"VALUES (S.table_name, S.profile, S.processed_at, S.location, CURRENT_TIMESTAMP())"

	// QrySelectPartitionLocation looks up the location of one partition.
	//
	// Placeholders:
	// - `%s`: fully qualified catalog table, `%s`: table, `%s`: profile, `%s`: processed_at.
	QrySelectPartitionLocation = "SELECT location FROM `%s` WHERE table_name = '%s' AND profile = '%s' AND processed_at = '%s' LIMIT 1"

	// QryListPartitions lists the partitions of one profile of a table, newest first.
	//
	// Placeholders:
	// - `%s`: fully qualified catalog table, `%s`: table, `%s`: profile.
	QryListPartitions = "SELECT table_name, profile, processed_at, location FROM `%s` WHERE table_name = '%s' AND profile = '%s' ORDER BY processed_at DESC"

	// QrySelectCursor reads the persisted cursor for a profile and stage.
	//
	// Placeholders:
	// - `%s`: fully qualified cursor table, `%s`: profile, `%s`: stage.
	QrySelectCursor = "SELECT profile, stage, last_processed_at FROM `%s` WHERE profile = '%s' AND stage = '%s' LIMIT 1"

	// QryMergeCursor moves a persisted cursor forward. A row is only updated
	// when the new timestamp is later than the stored one.
	//
	// Placeholders:
	// - `%s`: fully qualified cursor table, `%s`: profile, `%s`: stage, `%s`: RFC 3339 timestamp.
	QryMergeCursor = "MERGE `%s` T USING (SELECT '%s' AS profile, '%s' AS stage, TIMESTAMP('%s') AS last_processed_at) S " +
		"ON T.profile = S.profile AND T.stage = S.stage " +
		"WHEN MATCHED AND T.last_processed_at < S.last_processed_at THEN UPDATE SET last_processed_at = S.last_processed_at " +
		"WHEN NOT MATCHED THEN INSERT (profile, stage, last_processed_at) VALUES (S.profile, S.stage, S.last_processed_at)"

	// QryEngagementStats aggregates engagement metrics per group. Metadata is
	// joined with the analysis table so the language and category groups are
	// available.
	//
	// Placeholders:
	// - `%s`: group expression, `%s`: metadata table, `%s`: analysis table.
	QryEngagementStats = "SELECT CAST(%s AS STRING) AS group_value, COUNT(*) AS video_count, " +
		"ROUND(AVG(m.view_count)) AS avg_views, APPROX_QUANTILES(m.view_count, 2)[OFFSET(1)] AS median_views, " +
		"ROUND(AVG(m.like_count)) AS avg_likes, APPROX_QUANTILES(m.like_count, 2)[OFFSET(1)] AS median_likes, " +
		"ROUND(AVG(m.repost_count)) AS avg_reposts, ROUND(AVG(m.comment_count)) AS avg_comments " +
		"FROM `%s` m LEFT JOIN `%s` a ON m.id = a.id AND m.profile = a.profile " +
		"GROUP BY group_value HAVING COUNT(*) >= @min_videos ORDER BY video_count DESC"

	// QryTopKeywords ranks the analysis keywords of each group and keeps the
	// @top_n most frequent.
	//
	// Placeholders:
	// - `%s`: group expression, `%s`: metadata table, `%s`: analysis table.
	QryTopKeywords = "SELECT CAST(%s AS STRING) AS group_value, LOWER(kw) AS keyword, COUNT(*) AS frequency " +
		"FROM `%s` m JOIN `%s` a ON m.id = a.id AND m.profile = a.profile CROSS JOIN UNNEST(a.keywords) AS kw " +
		"GROUP BY group_value, keyword " +
		"QUALIFY ROW_NUMBER() OVER (PARTITION BY group_value ORDER BY COUNT(*) DESC, keyword) <= @top_n " +
		"ORDER BY group_value, frequency DESC, keyword"

	// QryDurationStats summarizes video length per group. Short videos run at
	// most 30 seconds and long ones more than 60.
	//
	// Placeholders:
	// - `%s`: group expression, `%s`: metadata table, `%s`: analysis table.
	QryDurationStats = "SELECT CAST(%s AS STRING) AS group_value, COUNT(*) AS video_count, " +
		"ROUND(AVG(m.duration)) AS avg_duration, APPROX_QUANTILES(m.duration, 2)[OFFSET(1)] AS median_duration, " +
		"MIN(m.duration) AS min_duration, MAX(m.duration) AS max_duration, " +
		"COUNTIF(m.duration <= 30) * 100.0 / COUNT(*) AS pct_short, " +
		"COUNTIF(m.duration > 30 AND m.duration <= 60) * 100.0 / COUNT(*) AS pct_medium, " +
		"COUNTIF(m.duration > 60) * 100.0 / COUNT(*) AS pct_long " +
		"FROM `%s` m LEFT JOIN `%s` a ON m.id = a.id AND m.profile = a.profile " +
		"GROUP BY group_value HAVING COUNT(*) >= @min_videos ORDER BY video_count DESC"

	// QryUploadPatterns averages monthly upload activity per group. Groups
	// active in fewer than two months are omitted. upload_date is YYYYMMDD.
	//
	// Placeholders:
	// - `%s`: group expression, `%s`: metadata table, `%s`: analysis table.
	QryUploadPatterns = "WITH monthly AS (SELECT CAST(%s AS STRING) AS group_value, SUBSTR(m.upload_date, 1, 6) AS month, " +
		"COUNT(*) AS uploads, AVG(m.like_count) AS avg_likes, AVG(m.view_count) AS avg_views " +
		"FROM `%s` m LEFT JOIN `%s` a ON m.id = a.id AND m.profile = a.profile GROUP BY group_value, month) " +
		"SELECT group_value, COUNT(DISTINCT month) AS active_months, ROUND(AVG(uploads)) AS avg_uploads_per_month, " +
		"ROUND(AVG(avg_likes)) AS avg_likes_per_video, ROUND(AVG(avg_views)) AS avg_views_per_video " +
		"FROM monthly GROUP BY group_value HAVING COUNT(DISTINCT month) >= 2 ORDER BY avg_views_per_video DESC"
)

// QuoteHiveLiteral escapes a value for a single-quoted Hive literal.
func QuoteHiveLiteral(in string) string {
	return strings.ReplaceAll(in, "'", "''")
}

// QuoteBigQueryLiteral escapes a value for a single-quoted GoogleSQL literal.
func QuoteBigQueryLiteral(in string) string {
	return strings.NewReplacer(`\`, `\\`, "'", `\'`).Replace(in)
}
