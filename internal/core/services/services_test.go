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

// Package services_test contains the test suite for the services package.
// These tests cover the pieces that do not need a live backend: the record
// codec, the prompt builder, response parsing, error classification and the
// statement templates.
package services_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/zeebo/assert"
)

func TestRecordCodec(t *testing.T) {
	text := "hello"
	in := []model.TranscriptRecord{
		{ID: "a", Profile: "p", Transcript: &text},
		{ID: "b", Profile: "p"},
	}
	body, err := services.EncodeRecords(in)
	assert.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(body), "\n"))
	assert.Equal(t, true, strings.Contains(string(body), `"transcript":null`))

	out, err := services.DecodeRecords[model.TranscriptRecord](append(body, '\n', '\n'))
	assert.NoError(t, err)
	assert.DeepEqual(t, in, out)

	_, err = services.DecodeRecords[model.TranscriptRecord]([]byte("{\"id\":\"a\"}\nnot json\n"))
	assert.Error(t, err)
}

func TestPromptBuilder(t *testing.T) {
	p, err := services.NewPromptBuilder("", nil)
	assert.NoError(t, err)

	transcript := "we add the garlic"
	prompt, err := p.Build("Pasta", "easy dinner", &transcript)
	assert.NoError(t, err)
	assert.Equal(t, true, strings.Contains(prompt, "  - Science/Experiments"))
	assert.Equal(t, true, strings.Contains(prompt, "Title: Pasta"))
	assert.Equal(t, true, strings.Contains(prompt, "Transcript: we add the garlic"))

	prompt, err = p.Build("Pasta", "easy dinner", nil)
	assert.NoError(t, err)
	assert.Equal(t, true, strings.HasSuffix(strings.TrimSpace(prompt), "Transcript:"))

	custom, err := services.NewPromptBuilder("{{ .Categories }}|{{ .Title }}", []string{"One", "Two"})
	assert.NoError(t, err)
	out, err := custom.Build("T", "", nil)
	assert.NoError(t, err)
	assert.Equal(t, "  - One\n  - Two|T", out)

	_, err = services.NewPromptBuilder("{{ .Broken", nil)
	assert.Equal(t, true, errors.Is(err, services.ErrConfiguration))
}

func TestParseAnalysis(t *testing.T) {
	a, err := services.ParseAnalysis("```json\n{\"language\":\"en\",\"category\":\"Gaming\",\"summary\":\"s\"}\n```")
	assert.NoError(t, err)
	assert.Equal(t, "en", *a.Language)
	assert.Equal(t, "Gaming", *a.Category)
	assert.Equal(t, 0, len(a.Keywords))
	assert.NotNil(t, a.Keywords)

	_, err = services.ParseAnalysis("I think this is about cooking")
	assert.Equal(t, true, errors.Is(err, services.ErrValidation))
}

func TestWrapAndRetryable(t *testing.T) {
	cause := errors.New("boom")
	err := services.Wrap(services.ErrTimeout, "registry", "poll", "after 30 attempts", cause)
	assert.Equal(t, true, errors.Is(err, services.ErrTimeout))
	assert.Equal(t, true, errors.Is(err, cause))
	assert.Equal(t, "timeout: registry: poll: after 30 attempts: boom", err.Error())

	assert.Equal(t, true, services.IsRetryable(err))
	assert.Equal(t, false, services.IsRetryable(services.Wrap(services.ErrPartitionConflict, "", "", "", nil)))
	assert.Equal(t, false, services.IsRetryable(services.Wrap(services.ErrMalformedKey, "", "", "", nil)))
	assert.Equal(t, false, services.IsRetryable(nil))
	assert.Equal(t, true, errors.Is(services.Wrap(nil, "", "", "", nil), services.ErrTransient))
}

func TestEngagementQuery(t *testing.T) {
	q, err := services.EngagementQuery("p.d.metadata", "p.d.text_analysis", "Category")
	assert.NoError(t, err)
	assert.Equal(t, true, strings.HasPrefix(q, "SELECT CAST(a.category AS STRING) AS group_value"))
	assert.Equal(t, true, strings.Contains(q, "FROM `p.d.metadata` m LEFT JOIN `p.d.text_analysis` a"))

	_, err = services.EngagementQuery("m", "a", "views; DROP TABLE x")
	assert.Error(t, err)
	assert.DeepEqual(t, []string{"category", "language", "profile"}, services.StatsGroups())
}

func TestReportQueries(t *testing.T) {
	q, err := services.ReportQuery("keywords", "p.d.metadata", "p.d.text_analysis", "language")
	assert.NoError(t, err)
	assert.Equal(t, true, strings.HasPrefix(q, "SELECT CAST(a.language AS STRING) AS group_value, LOWER(kw) AS keyword"))
	assert.Equal(t, true, strings.Contains(q, "CROSS JOIN UNNEST(a.keywords) AS kw"))
	assert.Equal(t, true, strings.Contains(q, "<= @top_n"))

	q, err = services.ReportQuery("Durations", "p.d.metadata", "p.d.text_analysis", "profile")
	assert.NoError(t, err)
	assert.Equal(t, true, strings.Contains(q, "COUNTIF(m.duration <= 30)"))
	assert.Equal(t, true, strings.Contains(q, "@min_videos"))

	q, err = services.ReportQuery("uploads", "p.d.metadata", "p.d.text_analysis", "category")
	assert.NoError(t, err)
	assert.Equal(t, true, strings.HasPrefix(q, "WITH monthly AS (SELECT CAST(a.category AS STRING) AS group_value, SUBSTR(m.upload_date, 1, 6) AS month"))
	assert.Equal(t, true, strings.Contains(q, "HAVING COUNT(DISTINCT month) >= 2"))

	_, err = services.ReportQuery("trending", "m", "a", "profile")
	assert.Equal(t, true, errors.Is(err, services.ErrValidation))
	assert.DeepEqual(t, []string{"durations", "engagement", "keywords", "uploads"}, services.StatsReports())
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, "o''neil", services.QuoteHiveLiteral("o'neil"))
	assert.Equal(t, `o\'neil\\x`, services.QuoteBigQueryLiteral(`o'neil\x`))
}

func TestYtDlpURLs(t *testing.T) {
	f := services.NewYtDlpFetcher("", "https://www.tiktok.com/", "", nil, 0)
	assert.Equal(t, "yt-dlp", f.Binary)
	assert.Equal(t, "mp3", f.AudioFormat)
	assert.Equal(t, "https://www.tiktok.com/@chef", f.ProfileURL("chef"))
	assert.Equal(t, "https://www.tiktok.com/@chef/video/42", f.VideoURL("chef", "42"))
}
