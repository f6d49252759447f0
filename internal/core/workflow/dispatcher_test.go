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

package workflow_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/registry"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const artifactBucket = "trends-artifacts"

type dispatcherFixture struct {
	catalog  *test.FakeCatalog
	queue    *test.FakeQueue
	workflow *workflow.StageDispatcherWorkflow
}

func newDispatcher() *dispatcherFixture {
	catalog := test.NewFakeCatalog()
	queue := &test.FakeQueue{}
	reg := registry.NewRegistry(catalog, registry.HiveDialect{Database: "trends"},
		registry.PollPolicy{Interval: time.Millisecond, MaxAttempts: 5})
	routes := map[model.Stage]services.QueueRoute{
		model.StageMetadata:      {Queue: "metadata-jobs", JobDefinition: "metadata-worker"},
		model.StageTranscription: {Queue: "transcription-jobs", JobDefinition: "transcription-worker"},
		model.StageAnalysis:      {Queue: "analysis-jobs", JobDefinition: "analysis-worker"},
	}
	return &dispatcherFixture{
		catalog:  catalog,
		queue:    queue,
		workflow: workflow.NewStageDispatcherWorkflow(reg, queue, routes),
	}
}

func (f *dispatcherFixture) dispatch(key string) cor.Context {
	return execute(f.workflow, test.GetTestArtifactNotification(artifactBucket, key), finalize())
}

func firstError(chainCtx cor.Context) error {
	for _, err := range chainCtx.GetErrors() {
		return err
	}
	return nil
}

func TestDispatcherSchedulesDownstreamStage(t *testing.T) {
	f := newDispatcher()
	key := model.ArtifactKey(model.StageMetadata, "chef.anna", fixedNow)

	chainCtx := f.dispatch(key)
	require.False(t, chainCtx.HasErrors(), firstError(chainCtx))
	assert.False(t, chainCtx.IsHalted())

	partitions, err := f.catalog.List(ctx, "metadata", "chef.anna")
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Equal(t, "gs://trends-artifacts/videos/metadata/profile=chef.anna/processed_at=2024-11-05_14:03:09", partitions[0].Location)

	require.Len(t, f.queue.Jobs, 1)
	job := f.queue.Jobs[0]
	assert.Equal(t, model.StageTranscription, job.Stage)
	assert.Equal(t, "transcription-jobs", job.Queue)
	assert.Equal(t, "transcription-worker", job.JobDefinition)
	assert.Equal(t, artifactBucket, job.Env[model.EnvSourceBucket])
	assert.Equal(t, key, job.Env[model.EnvSourceKey])
	assert.True(t, strings.HasPrefix(job.Name, "transcribe-chefanna-"), job.Name)
}

func TestDispatcherTranscriptsScheduleAnalysis(t *testing.T) {
	f := newDispatcher()
	chainCtx := f.dispatch(model.ArtifactKey(model.StageTranscription, "chef.anna", fixedNow))
	require.False(t, chainCtx.HasErrors(), firstError(chainCtx))

	require.Len(t, f.queue.Jobs, 1)
	assert.Equal(t, model.StageAnalysis, f.queue.Jobs[0].Stage)
	assert.Equal(t, "analysis-jobs", f.queue.Jobs[0].Queue)
}

func TestDispatcherFinalStageRegistersOnly(t *testing.T) {
	f := newDispatcher()
	chainCtx := f.dispatch(model.ArtifactKey(model.StageAnalysis, "chef.anna", fixedNow))
	require.False(t, chainCtx.HasErrors(), firstError(chainCtx))

	assert.Len(t, f.catalog.Statements, 1)
	assert.Empty(t, f.queue.Jobs)
}

func TestDispatcherOtherFilesDoNotStartJobs(t *testing.T) {
	f := newDispatcher()
	key := model.PartitionDir(model.StageMetadata, "chef.anna", fixedNow) + "/_SUCCESS"

	chainCtx := f.dispatch(key)
	require.False(t, chainCtx.HasErrors(), firstError(chainCtx))
	assert.Len(t, f.catalog.Statements, 1)
	assert.Empty(t, f.queue.Jobs)
}

func TestDispatcherDropsMalformedKeys(t *testing.T) {
	keys := []string{
		"videos/metadata/PROFILE=chef/PROCESSED_AT=2024-11-05_14:03:09/metadata.json",
		"videos/metadata/profile=chef/processed_at=last-tuesday/metadata.json",
		"batch-jobs/6c1f/profiles.txt",
		"videos/thumbnails/profile=chef/processed_at=2024-11-05_14:03:09/a.jpg",
	}
	for _, key := range keys {
		f := newDispatcher()
		chainCtx := f.dispatch(key)

		assert.False(t, chainCtx.HasErrors(), key)
		assert.True(t, chainCtx.IsHalted(), key)
		assert.Empty(t, f.catalog.Statements, key)
		assert.Zero(t, f.catalog.StatusCalls, key)
		assert.Empty(t, f.queue.Jobs, key)
	}
}

func TestDispatcherIgnoresOtherEventTypes(t *testing.T) {
	f := newDispatcher()
	payload := test.GetTestArtifactNotification(artifactBucket, model.ArtifactKey(model.StageMetadata, "chef.anna", fixedNow))

	chainCtx := execute(f.workflow, payload, map[string]string{cloud.AttributeEventType: "OBJECT_DELETE"})
	assert.False(t, chainCtx.HasErrors())
	assert.True(t, chainCtx.IsHalted())
	assert.Empty(t, f.catalog.Statements)
	assert.Empty(t, f.queue.Jobs)
}

func TestDispatcherDropsUndecodableNotifications(t *testing.T) {
	f := newDispatcher()
	chainCtx := execute(f.workflow, "{not json", finalize())
	assert.False(t, chainCtx.HasErrors())
	assert.True(t, chainCtx.IsHalted())
	assert.Empty(t, f.queue.Jobs)
}

func TestDispatcherRedeliveryIsIdempotent(t *testing.T) {
	f := newDispatcher()
	key := model.ArtifactKey(model.StageMetadata, "chef.anna", fixedNow)

	first := f.dispatch(key)
	second := f.dispatch(key)
	require.False(t, first.HasErrors(), firstError(first))
	require.False(t, second.HasErrors(), firstError(second))

	// The second delivery finds the partition and issues no statement.
	assert.Len(t, f.catalog.Statements, 1)
	require.Len(t, f.queue.Jobs, 2)
	assert.Equal(t, f.queue.Jobs[0].ID, f.queue.Jobs[1].ID)
}

func TestDispatcherSurfacesPartitionConflict(t *testing.T) {
	f := newDispatcher()
	f.catalog.Partitions["metadata|chef.anna|2024-11-05_14:03:09"] = model.Partition{
		Table:       "metadata",
		Profile:     "chef.anna",
		ProcessedAt: "2024-11-05_14:03:09",
		Location:    "gs://another-bucket/videos/metadata/profile=chef.anna/processed_at=2024-11-05_14:03:09",
	}

	chainCtx := f.dispatch(model.ArtifactKey(model.StageMetadata, "chef.anna", fixedNow))
	require.True(t, chainCtx.HasErrors())
	assert.True(t, errors.Is(firstError(chainCtx), services.ErrPartitionConflict))
	assert.Empty(t, f.catalog.Statements)
	assert.Empty(t, f.queue.Jobs)
}

func TestDispatcherRegistryTimeoutIsRetryable(t *testing.T) {
	f := newDispatcher()
	f.catalog.RunningPolls = 100

	chainCtx := f.dispatch(model.ArtifactKey(model.StageMetadata, "chef.anna", fixedNow))
	require.True(t, chainCtx.HasErrors())
	err := firstError(chainCtx)
	assert.True(t, errors.Is(err, registry.ErrRegistryTimeout))
	assert.True(t, services.IsRetryable(err))
	assert.Equal(t, 5, f.catalog.StatusCalls)
	assert.Empty(t, f.queue.Jobs)
}

func TestDispatcherQueueFailureIsAnError(t *testing.T) {
	f := newDispatcher()
	f.queue.Err = services.Wrap(services.ErrTransient, "queue", "publish", "unavailable", nil)

	chainCtx := f.dispatch(model.ArtifactKey(model.StageMetadata, "chef.anna", fixedNow))
	require.True(t, chainCtx.HasErrors())
	assert.True(t, errors.Is(firstError(chainCtx), services.ErrTransient))
}
