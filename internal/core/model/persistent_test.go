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

package model_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewVideoRecord maps a native record carrying every field.
func TestNewVideoRecord(t *testing.T) {
	raw := `{
		"id": "7301",
		"title": "Pasta",
		"description": "three ingredients",
		"upload_date": "20240315",
		"like_count": 120,
		"repost_count": 4,
		"comment_count": 9,
		"view_count": 5000,
		"duration": 31.5,
		"webpage_url": "https://www.tiktok.com/@chef/video/7301",
		"channel": "chef",
		"uploader": "chef",
		"timestamp": 1710500000,
		"track": "original sound",
		"artist": "A, B"
	}`
	v, err := model.NewVideoRecord("chef", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "7301", v.ID)
	assert.Equal(t, "chef", v.Profile)
	assert.Equal(t, int64(120), v.LikeCount)
	assert.Equal(t, int64(5000), v.ViewCount)
	assert.Equal(t, 31.5, v.Duration)
	assert.Equal(t, int64(1710500000), v.Timestamp)
	assert.Equal(t, []string{"A", "B"}, v.Artists)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), v.ImpliedTimestamp())
}

// TestNewVideoRecordDefaults covers missing optional fields and rejection of
// records without an id.
func TestNewVideoRecordDefaults(t *testing.T) {
	v, err := model.NewVideoRecord("p", []byte(`{"id":"1","like_count":null}`))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultUploadDate, v.UploadDate)
	assert.Equal(t, int64(0), v.LikeCount)
	assert.Nil(t, v.Artists)

	_, err = model.NewVideoRecord("p", []byte(`{"title":"no id"}`))
	assert.Error(t, err)

	_, err = model.NewVideoRecord("p", []byte(`not json`))
	assert.Error(t, err)
}

// TestNewAnalysisRecordDefaults verifies the defaults a failed classification
// leaves in place and how they serialize.
func TestNewAnalysisRecordDefaults(t *testing.T) {
	rec := model.NewAnalysisRecord(model.TranscriptRecord{ID: "1", Profile: "p", Title: "t"})
	assert.Equal(t, "p", rec.Uploader)
	assert.Nil(t, rec.Language)
	assert.Nil(t, rec.Category)
	assert.Equal(t, "", rec.Summary)
	assert.Equal(t, []string{}, rec.Keywords)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), `"keywords":[]`))
	assert.True(t, strings.Contains(string(out), `"language":null`))
	assert.True(t, strings.Contains(string(out), `"transcript":null`))

	rec.Apply(model.GetExampleAnalysis())
	assert.Equal(t, "Food/Cooking", *rec.Category)
	assert.Len(t, rec.Keywords, 4)
}

// TestNewJobRequest checks the deterministic id and the required env.
func TestNewJobRequest(t *testing.T) {
	src := model.ObjectRef{Bucket: "b", Key: "videos/metadata/profile=p/processed_at=2024-01-02_03:04:05/metadata.json"}
	job := model.NewJobRequest(model.StageTranscription, src, "p")

	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte(src.String())).String(), job.ID)
	assert.Equal(t, "b", job.Env[model.EnvSourceBucket])
	assert.Equal(t, src.Key, job.Env[model.EnvSourceKey])
	assert.True(t, strings.HasPrefix(job.Name, "transcribe-p-"))
	assert.WithinDuration(t, time.Now(), job.SubmittedAt, time.Second)

	got, err := job.Source()
	assert.NoError(t, err)
	assert.Equal(t, src, got)

	_, err = (&model.JobRequest{Env: map[string]string{}}).Source()
	assert.Error(t, err)
}

func TestJobName(t *testing.T) {
	name := model.JobName("text", "a.very.long.profile.name.with.dots.and.more", "k")
	parts := strings.Split(name, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0])
	assert.Len(t, parts[1], 30)
	assert.Len(t, parts[2], 8)
	assert.Equal(t, name, model.JobName("text", "a.very.long.profile.name.with.dots.and.more", "k"))
}

func TestJoinSegments(t *testing.T) {
	segs := []model.Segment{{Text: " hello"}, {Text: "  "}, {Text: "world "}}
	assert.Equal(t, "hello world", model.JoinSegments(segs))
	assert.Equal(t, "", model.JoinSegments(nil))
}

func TestProfiles(t *testing.T) {
	profiles, err := model.ParseProfiles(strings.NewReader("a\n\n  b \r\nc\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, profiles)

	groups := model.SplitProfiles([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"d", "e"}}, groups)

	assert.Len(t, model.SplitProfiles([]string{"a", "b"}, 5), 2)
	assert.Nil(t, model.SplitProfiles(nil, 3))
	assert.Equal(t, "a\nb\n", model.FormatProfiles([]string{"a", "b"}))
}

func TestParseProfilesSkipsUnsafeHandles(t *testing.T) {
	profiles, err := model.ParseProfiles(strings.NewReader("chef\n..\n.\n/\nbaker/../x\nc\\d\nbaker\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"chef", "baker"}, profiles)

	assert.True(t, model.ValidProfile("chef.eats"))
	assert.False(t, model.ValidProfile(""))
	assert.False(t, model.ValidProfile(".."))
}
