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

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-insights/internal/api"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/registry"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucket = "trends-artifacts"

type fakeStats struct {
	groups  []string
	reports []string
	err     error
}

func (f *fakeStats) record(report, group string) error {
	f.reports = append(f.reports, report)
	f.groups = append(f.groups, group)
	return f.err
}

func (f *fakeStats) Engagement(_ context.Context, group string) ([]*services.EngagementStats, error) {
	if err := f.record(services.ReportEngagement, group); err != nil {
		return nil, err
	}
	return []*services.EngagementStats{{
		Group:      bigquery.NullString{StringVal: "chef.anna", Valid: true},
		VideoCount: 12,
		AvgViews:   bigquery.NullFloat64{Float64: 1500, Valid: true},
	}}, nil
}

func (f *fakeStats) Keywords(_ context.Context, group string) ([]*services.KeywordStats, error) {
	if err := f.record(services.ReportKeywords, group); err != nil {
		return nil, err
	}
	return []*services.KeywordStats{{
		Group:     bigquery.NullString{StringVal: "Food/Cooking", Valid: true},
		Keyword:   "pasta",
		Frequency: 9,
	}}, nil
}

func (f *fakeStats) Durations(_ context.Context, group string) ([]*services.DurationStats, error) {
	if err := f.record(services.ReportDurations, group); err != nil {
		return nil, err
	}
	return []*services.DurationStats{{VideoCount: 6}}, nil
}

func (f *fakeStats) UploadPatterns(_ context.Context, group string) ([]*services.UploadPatternStats, error) {
	if err := f.record(services.ReportUploads, group); err != nil {
		return nil, err
	}
	return []*services.UploadPatternStats{{ActiveMonths: 3}}, nil
}

type server struct {
	router *gin.Engine
	queue  *test.FakeQueue
	stats  *fakeStats
}

func newServer(queueErr error) *server {
	gin.SetMode(gin.TestMode)
	queue := &test.FakeQueue{Err: queueErr}
	reg := registry.NewRegistry(test.NewFakeCatalog(), registry.HiveDialect{Database: "trends"},
		registry.PollPolicy{Interval: time.Millisecond, MaxAttempts: 5})
	dispatcher := workflow.NewStageDispatcherWorkflow(reg, queue, map[model.Stage]services.QueueRoute{
		model.StageTranscription: {Queue: "transcription-jobs", JobDefinition: "transcription-worker"},
		model.StageAnalysis:      {Queue: "analysis-jobs", JobDefinition: "analysis-worker"},
	})

	stats := &fakeStats{}
	r := gin.New()
	v1 := r.Group("/api/v1")
	api.Events(v1, dispatcher)
	api.Stats(v1, stats)
	api.Health(v1)
	return &server{router: r, queue: queue, stats: stats}
}

func (s *server) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func push(t *testing.T, messageID, key, eventType string) string {
	t.Helper()
	envelope := api.PushEnvelope{
		Message: api.PushMessage{
			Data:       []byte(test.GetTestArtifactNotification(bucket, key)),
			Attributes: map[string]string{cloud.AttributeEventType: eventType},
			MessageID:  messageID,
		},
		Subscription: "projects/p/subscriptions/artifacts-push",
	}
	out, err := json.Marshal(envelope)
	require.NoError(t, err)
	return string(out)
}

func TestPushSchedulesJob(t *testing.T) {
	s := newServer(nil)
	key := model.ArtifactKey(model.StageMetadata, "chef.anna", time.Date(2024, 11, 5, 14, 3, 9, 0, time.UTC))

	w := s.do(http.MethodPost, "/api/v1/events/artifacts", push(t, "m-1", key, cloud.EventTypeObjectFinalize))
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, s.queue.Jobs, 1)
	assert.Equal(t, model.StageTranscription, s.queue.Jobs[0].Stage)
}

func TestPushDroppedMessageIsAcknowledged(t *testing.T) {
	s := newServer(nil)
	w := s.do(http.MethodPost, "/api/v1/events/artifacts", push(t, "m-2", "videos/metadata/readme.txt", cloud.EventTypeObjectFinalize))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.queue.Jobs)

	w = s.do(http.MethodPost, "/api/v1/events/artifacts", push(t, "m-3", "videos/metadata/x", "OBJECT_DELETE"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPushFailureIsRedelivered(t *testing.T) {
	s := newServer(errors.New("publish failed"))
	key := model.ArtifactKey(model.StageTranscription, "chef.anna", time.Date(2024, 11, 5, 14, 3, 9, 0, time.UTC))

	w := s.do(http.MethodPost, "/api/v1/events/artifacts", push(t, "m-4", key, cloud.EventTypeObjectFinalize))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPushRejectsBadEnvelope(t *testing.T) {
	s := newServer(nil)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/events/artifacts", "{").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/events/artifacts", `{"message":{}}`).Code)
}

func TestEngagement(t *testing.T) {
	s := newServer(nil)
	w := s.do(http.MethodGet, "/api/v1/stats/engagement?group=language", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"language"}, s.stats.groups)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "chef.anna", rows[0]["group"])
	assert.EqualValues(t, 12, rows[0]["video_count"])

	s.do(http.MethodGet, "/api/v1/stats/engagement", "")
	assert.Equal(t, []string{"language", "profile"}, s.stats.groups)
}

func TestEngagementErrors(t *testing.T) {
	s := newServer(nil)
	s.stats.err = services.Wrap(services.ErrValidation, "stats", "group", "unknown group", nil)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/stats/engagement?group=x", "").Code)

	s.stats.err = services.Wrap(services.ErrTransient, "stats", "query", "", errors.New("backend"))
	assert.Equal(t, http.StatusInternalServerError, s.do(http.MethodGet, "/api/v1/stats/engagement", "").Code)
}

func TestReportsAreRouted(t *testing.T) {
	s := newServer(nil)
	for _, report := range []string{"keywords", "durations", "uploads"} {
		w := s.do(http.MethodGet, "/api/v1/stats/"+report+"?group=category", "")
		require.Equal(t, http.StatusOK, w.Code, report)
	}
	assert.Equal(t, []string{"keywords", "durations", "uploads"}, s.stats.reports)
	assert.Equal(t, []string{"category", "category", "category"}, s.stats.groups)

	w := s.do(http.MethodGet, "/api/v1/stats/keywords", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"group":"Food/Cooking","keyword":"pasta","frequency":9}]`, w.Body.String())

	s.stats.err = services.Wrap(services.ErrValidation, "stats", "group", "unknown group", nil)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/stats/uploads?group=x", "").Code)
}

func TestHealthAndGroups(t *testing.T) {
	s := newServer(nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/healthz", "").Code)

	w := s.do(http.MethodGet, "/api/v1/stats/groups", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["category","language","profile"]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/stats/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["durations","engagement","keywords","uploads"]`, w.Body.String())
}
