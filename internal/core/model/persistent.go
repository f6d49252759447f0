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

// Package model defines the core data structures for the pipeline. This file,
// `persistent.go`, holds the records that are written to partitions in the
// artifact store and the catalog rows that describe them. Records are
// immutable once written; every optional field is explicit.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultUploadDate is used when the content client omits an upload date.
const DefaultUploadDate = "19700101"

const uploadDateLayout = "20060102"

// VideoRecord is one video's metadata as written by the metadata stage.
type VideoRecord struct {
	ID           string   `json:"id" bigquery:"id"`
	Profile      string   `json:"profile" bigquery:"profile"`
	Title        string   `json:"title" bigquery:"title"`
	Description  string   `json:"description" bigquery:"description"`
	UploadDate   string   `json:"upload_date" bigquery:"upload_date"` // YYYYMMDD
	LikeCount    int64    `json:"like_count" bigquery:"like_count"`
	RepostCount  int64    `json:"repost_count" bigquery:"repost_count"`
	CommentCount int64    `json:"comment_count" bigquery:"comment_count"`
	ViewCount    int64    `json:"view_count" bigquery:"view_count"`
	Duration     float64  `json:"duration" bigquery:"duration"` // seconds
	WebpageURL   string   `json:"webpage_url" bigquery:"webpage_url"`
	Channel      string   `json:"channel" bigquery:"channel"`
	Uploader     string   `json:"uploader" bigquery:"uploader"`
	Timestamp    int64    `json:"timestamp" bigquery:"timestamp"` // unix seconds
	Track        string   `json:"track,omitempty" bigquery:"track"`
	Artists      []string `json:"artists,omitempty" bigquery:"artists"`
}

// nativeVideo mirrors the subset of the content client's info JSON the
// pipeline keeps. Pointers distinguish a missing value from a zero one.
type nativeVideo struct {
	ID           *string  `json:"id"`
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	UploadDate   *string  `json:"upload_date"`
	LikeCount    *float64 `json:"like_count"`
	RepostCount  *float64 `json:"repost_count"`
	CommentCount *float64 `json:"comment_count"`
	ViewCount    *float64 `json:"view_count"`
	Duration     *float64 `json:"duration"`
	WebpageURL   *string  `json:"webpage_url"`
	Channel      *string  `json:"channel"`
	Uploader     *string  `json:"uploader"`
	Timestamp    *float64 `json:"timestamp"`
	Track        *string  `json:"track"`
	Artists      []string `json:"artists"`
	Artist       *string  `json:"artist"`
}

// NewVideoRecord maps one native record into a VideoRecord. A record that does
// not decode or that has no id is rejected; every other field is optional.
//
// Inputs:
//   - profile: The profile the record was fetched for.
//   - raw: The native JSON record.
//
// Outputs:
//   - *VideoRecord: The mapped record.
//   - error: Decoding failure or a missing id.
func NewVideoRecord(profile string, raw []byte) (*VideoRecord, error) {
	var n nativeVideo
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	id := str(n.ID)
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("record has no id")
	}
	out := &VideoRecord{
		ID:           id,
		Profile:      profile,
		Title:        str(n.Title),
		Description:  str(n.Description),
		UploadDate:   str(n.UploadDate),
		LikeCount:    count(n.LikeCount),
		RepostCount:  count(n.RepostCount),
		CommentCount: count(n.CommentCount),
		ViewCount:    count(n.ViewCount),
		WebpageURL:   str(n.WebpageURL),
		Channel:      str(n.Channel),
		Uploader:     str(n.Uploader),
		Timestamp:    count(n.Timestamp),
		Track:        str(n.Track),
		Artists:      n.Artists,
	}
	if n.Duration != nil {
		out.Duration = *n.Duration
	}
	if out.UploadDate == "" {
		out.UploadDate = DefaultUploadDate
	}
	if len(out.Artists) == 0 && n.Artist != nil && *n.Artist != "" {
		out.Artists = strings.Split(*n.Artist, ", ")
	}
	return out, nil
}

// ImpliedTimestamp is the upload date at midnight UTC. An unparseable date
// yields the zero time, which sorts before every cursor.
func (v VideoRecord) ImpliedTimestamp() time.Time {
	t, err := time.ParseInLocation(uploadDateLayout, v.UploadDate, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TranscriptRecord is written by the transcription stage. A nil Transcript
// means acquisition or transcription failed for that item.
type TranscriptRecord struct {
	ID          string  `json:"id" bigquery:"id"`
	Profile     string  `json:"profile" bigquery:"profile"`
	Uploader    string  `json:"uploader,omitempty" bigquery:"uploader"`
	Title       string  `json:"title" bigquery:"title"`
	Description string  `json:"description" bigquery:"description"`
	Transcript  *string `json:"transcript" bigquery:"transcript"`
}

// Analysis is the structured judgment returned by the analysis engine.
type Analysis struct {
	Language *string  `json:"language"`
	Category *string  `json:"category"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// AnalysisRecord is written by the analysis stage. The analysis fields keep
// their defaults when classification fails.
type AnalysisRecord struct {
	ID          string   `json:"id" bigquery:"id"`
	Profile     string   `json:"profile" bigquery:"profile"`
	Uploader    string   `json:"uploader" bigquery:"uploader"`
	Title       string   `json:"title" bigquery:"title"`
	Description string   `json:"description" bigquery:"description"`
	Transcript  *string  `json:"transcript" bigquery:"transcript"`
	Language    *string  `json:"language" bigquery:"language"`
	Category    *string  `json:"category" bigquery:"category"`
	Summary     string   `json:"summary" bigquery:"summary"`
	Keywords    []string `json:"keywords" bigquery:"keywords"`
}

// NewAnalysisRecord creates a record with default analysis fields for the
// transcript. The uploader falls back to the profile handle.
func NewAnalysisRecord(t TranscriptRecord) AnalysisRecord {
	uploader := t.Uploader
	if uploader == "" {
		uploader = t.Profile
	}
	return AnalysisRecord{
		ID:          t.ID,
		Profile:     t.Profile,
		Uploader:    uploader,
		Title:       t.Title,
		Description: t.Description,
		Transcript:  t.Transcript,
		Keywords:    make([]string, 0),
	}
}

// Apply copies a successful analysis onto the record.
func (r *AnalysisRecord) Apply(a *Analysis) {
	if a == nil {
		return
	}
	r.Language = a.Language
	r.Category = a.Category
	r.Summary = a.Summary
	if a.Keywords != nil {
		r.Keywords = a.Keywords
	}
}

// ProfileCursor is the last processed_at written for a profile and stage.
type ProfileCursor struct {
	Profile         string    `json:"profile" bigquery:"profile"`
	Stage           Stage     `json:"stage" bigquery:"stage"`
	LastProcessedAt time.Time `json:"last_processed_at" bigquery:"last_processed_at"`
}

// Partition is one registered write batch in the catalog.
type Partition struct {
	Table       string `json:"table" bigquery:"table_name"`
	Profile     string `json:"profile" bigquery:"profile"`
	ProcessedAt string `json:"processed_at" bigquery:"processed_at"`
	Location    string `json:"location" bigquery:"location"`
}

func str(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}

func count(in *float64) int64 {
	if in == nil {
		return 0
	}
	return int64(*in)
}
