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
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cursor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetadataWorker(fetcher *test.FakeFetcher) (*workflow.MetadataWorker, *test.MemoryStore, *cursor.MemorySource) {
	store := test.NewMemoryStore()
	source := cursor.NewMemorySource()
	w := workflow.NewMetadataWorker(fetcher, store, cursor.NewTracker(source), artifactBucket)
	w.Now = clock
	return w, store, source
}

func chefFetcher() *test.FakeFetcher {
	return &test.FakeFetcher{Metadata: map[string][]string{
		"chef": {
			test.GetTestVideoJSON("7401", "20241101", 1200),
			`{"title":"no id"}`,
			test.GetTestVideoJSON("7403", "20241103", 800),
			"not json",
		},
	}}
}

func TestMetadataWorkerWritesAllWithoutCursor(t *testing.T) {
	w, store, source := newMetadataWorker(chefFetcher())

	records, err := w.Run(ctx, "chef")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "7401", records[0].ID)
	assert.Equal(t, "chef", records[0].Profile)
	assert.Equal(t, []string{"Chef", "Friend"}, records[0].Artists)

	ref := model.ObjectRef{Bucket: artifactBucket, Key: model.ArtifactKey(model.StageMetadata, "chef", fixedNow)}
	stored, err := services.ReadRecords[model.VideoRecord](ctx, store, ref)
	require.NoError(t, err)
	assert.Equal(t, records, stored)

	at, ok, err := source.LatestProcessedAt(ctx, "chef", model.StageMetadata)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fixedNow.Equal(at))
}

func TestMetadataWorkerFiltersByCursor(t *testing.T) {
	w, _, source := newMetadataWorker(chefFetcher())
	require.NoError(t, source.Advance(ctx, model.ProfileCursor{
		Profile:         "chef",
		Stage:           model.StageMetadata,
		LastProcessedAt: time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC),
	}))

	records, err := w.Run(ctx, "chef")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "7403", records[0].ID)
}

func TestMetadataWorkerWritesNothingWhenUpToDate(t *testing.T) {
	w, store, source := newMetadataWorker(chefFetcher())
	seen := time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC)
	require.NoError(t, source.Advance(ctx, model.ProfileCursor{Profile: "chef", Stage: model.StageMetadata, LastProcessedAt: seen}))

	records, err := w.Run(ctx, "chef")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, store.Keys(artifactBucket))

	at, _, _ := source.LatestProcessedAt(ctx, "chef", model.StageMetadata)
	assert.True(t, seen.Equal(at))
}

func TestMetadataWorkerRunJob(t *testing.T) {
	fetcher := chefFetcher()
	fetcher.Metadata["baker"] = []string{test.GetTestVideoJSON("9001", "20241104", 50)}
	w, store, _ := newMetadataWorker(fetcher)

	profiles := model.ObjectRef{Bucket: artifactBucket, Key: "batch-jobs/0b7c/profiles.txt"}
	require.NoError(t, store.Put(ctx, profiles, []byte("chef\n\n  baker \nquiet\n"), "text/plain"))

	job := model.NewJobRequest(model.StageMetadata, profiles)
	require.NoError(t, w.RunJob(ctx, job))

	assert.Equal(t, []string{
		"batch-jobs/0b7c/profiles.txt",
		model.ArtifactKey(model.StageMetadata, "baker", fixedNow),
		model.ArtifactKey(model.StageMetadata, "chef", fixedNow),
	}, store.Keys(artifactBucket))
}

func TestMetadataWorkerRunJobJoinsProfileErrors(t *testing.T) {
	fetcher := chefFetcher()
	fetcher.MetadataErr = services.Wrap(services.ErrExternalTool, "metadata", "yt-dlp", "blocked", nil)
	w, store, _ := newMetadataWorker(fetcher)

	profiles := model.ObjectRef{Bucket: artifactBucket, Key: "batch-jobs/0b7d/profiles.txt"}
	require.NoError(t, store.Put(ctx, profiles, []byte("chef\nbaker\n"), "text/plain"))

	err := w.RunJob(ctx, model.NewJobRequest(model.StageMetadata, profiles))
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrExternalTool))
	assert.Contains(t, err.Error(), "profile chef")
	assert.Contains(t, err.Error(), "profile baker")
}

func TestMetadataWorkerRunJobMissingProfilesFile(t *testing.T) {
	w, _, _ := newMetadataWorker(chefFetcher())
	err := w.RunJob(ctx, model.NewJobRequest(model.StageMetadata, model.ObjectRef{Bucket: artifactBucket, Key: "batch-jobs/none/profiles.txt"}))
	assert.True(t, errors.Is(err, services.ErrNotFound))
}
