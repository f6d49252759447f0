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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videos(profile string, ids ...string) []model.VideoRecord {
	out := make([]model.VideoRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.VideoRecord{
			ID:          id,
			Profile:     profile,
			Title:       "Video " + id,
			Description: "about " + id,
			Uploader:    profile + "_official",
			UploadDate:  "20241101",
		})
	}
	return out
}

func TestTranscriptionWorkerKeepsOneRecordPerItem(t *testing.T) {
	scratch := t.TempDir()
	fetcher := &test.FakeFetcher{
		MissingAudio: map[string]bool{"c": true},
		NotAudio:     map[string]bool{"d": true},
	}
	engine := &test.FakeTranscriber{
		Segments: map[string][]model.Segment{
			"a": {{Start: 0, End: 1.5, Text: "  hello "}, {Start: 1.5, End: 2, Text: "world"}},
			"e": {},
		},
		Fail: map[string]bool{"b": true},
	}
	w := workflow.NewTranscriptionWorker(fetcher, engine, test.NewMemoryStore(), artifactBucket, scratch, 0)

	records, err := w.Run(ctx, "chef", videos("chef", "a", "b", "c", "d", "e"))
	require.NoError(t, err)
	require.Len(t, records, 5)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		assert.Equal(t, "chef", r.Profile)
		assert.Equal(t, "chef_official", r.Uploader)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)

	require.NotNil(t, records[0].Transcript)
	assert.Equal(t, "hello world", *records[0].Transcript)
	assert.Nil(t, records[1].Transcript)
	assert.Nil(t, records[2].Transcript)
	assert.Nil(t, records[3].Transcript)
	require.NotNil(t, records[4].Transcript)
	assert.Equal(t, "", *records[4].Transcript)

	// One download for the whole profile, and "d" never reached the engine.
	assert.Equal(t, 1, fetcher.AudioCalls)
	require.Len(t, fetcher.AudioDirs, 1)
	assert.Equal(t, scratch, filepath.Dir(fetcher.AudioDirs[0]))
	assert.Len(t, engine.Seen, 3)

	assertScratchClean(t, scratch, fetcher.AudioDirs[0])
}

func assertScratchClean(t *testing.T, scratch, runDir string) {
	t.Helper()
	_, err := os.Stat(runDir)
	assert.True(t, os.IsNotExist(err), runDir)
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranscriptionWorkerRemovesScratchOnDownloadFailure(t *testing.T) {
	scratch := t.TempDir()
	fetcher := &test.FakeFetcher{AudioErr: services.Wrap(services.ErrExternalTool, "transcription", "yt-dlp", "blocked", nil)}
	w := workflow.NewTranscriptionWorker(fetcher, &test.FakeTranscriber{}, test.NewMemoryStore(), artifactBucket, scratch, 0)

	_, err := w.Run(ctx, "chef", videos("chef", "a"))
	require.NoError(t, err)
	require.Len(t, fetcher.AudioDirs, 1)
	assertScratchClean(t, scratch, fetcher.AudioDirs[0])
}

func TestTranscriptionWorkerRemovesScratchOnCancel(t *testing.T) {
	scratch := t.TempDir()
	fetcher := &test.FakeFetcher{}
	engine := &test.FakeTranscriber{}
	w := workflow.NewTranscriptionWorker(fetcher, engine, test.NewMemoryStore(), artifactBucket, scratch, 0)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	records, err := w.Run(cancelled, "chef", videos("chef", "a", "b"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, records)
	assert.Empty(t, engine.Seen)
	require.Len(t, fetcher.AudioDirs, 1)
	assertScratchClean(t, scratch, fetcher.AudioDirs[0])
}

func TestTranscriptionWorkerStaysInsideScratch(t *testing.T) {
	root := t.TempDir()
	scratch := filepath.Join(root, "scratch")
	precious := filepath.Join(root, "precious.txt")
	require.NoError(t, os.WriteFile(precious, []byte("keep"), 0o600))
	inflight := filepath.Join(scratch, "chef", "inflight.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(inflight), 0o755))
	require.NoError(t, os.WriteFile(inflight, test.MP3Header, 0o600))

	fetcher := &test.FakeFetcher{}
	w := workflow.NewTranscriptionWorker(fetcher, &test.FakeTranscriber{}, test.NewMemoryStore(), artifactBucket, scratch, 0)
	for _, profile := range []string{"..", ".", "", "chef"} {
		_, err := w.Run(ctx, profile, videos(profile, "a"))
		require.NoError(t, err, profile)
	}

	_, err := os.Stat(precious)
	assert.NoError(t, err)
	_, err = os.Stat(inflight)
	assert.NoError(t, err)
	for _, dir := range fetcher.AudioDirs {
		assert.Equal(t, scratch, filepath.Dir(dir))
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err), dir)
	}
}

func TestTranscriptionWorkerDownloadFailureFailsItems(t *testing.T) {
	scratch := t.TempDir()
	fetcher := &test.FakeFetcher{AudioErr: services.Wrap(services.ErrExternalTool, "transcription", "yt-dlp", "blocked", nil)}
	engine := &test.FakeTranscriber{}
	w := workflow.NewTranscriptionWorker(fetcher, engine, test.NewMemoryStore(), artifactBucket, scratch, 0)

	records, err := w.Run(ctx, "chef", videos("chef", "a", "b"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].Transcript)
	assert.Nil(t, records[1].Transcript)
	assert.Empty(t, engine.Seen)
}

func TestTranscriptionWorkerRunJob(t *testing.T) {
	store := test.NewMemoryStore()
	engine := &test.FakeTranscriber{Segments: map[string][]model.Segment{
		"a1": {{Text: "first"}},
		"b1": {{Text: "second"}},
	}}
	w := workflow.NewTranscriptionWorker(&test.FakeFetcher{}, engine, store, artifactBucket, t.TempDir(), 2)
	w.Now = clock

	input := append(videos("anna", "a1"), videos("ben", "b1")...)
	input = append(input, videos("anna", "a2", "a3")...)
	source := model.ObjectRef{Bucket: artifactBucket, Key: model.ArtifactKey(model.StageMetadata, "mixed", fixedNow)}
	require.NoError(t, services.WriteRecords(ctx, store, source, input))

	require.NoError(t, w.RunJob(ctx, model.NewJobRequest(model.StageTranscription, source)))

	anna, err := services.ReadRecords[model.TranscriptRecord](ctx, store,
		model.ObjectRef{Bucket: artifactBucket, Key: model.ArtifactKey(model.StageTranscription, "anna", fixedNow)})
	require.NoError(t, err)
	require.Len(t, anna, 2)
	assert.Equal(t, "a1", anna[0].ID)
	assert.Equal(t, "first", *anna[0].Transcript)
	assert.Equal(t, "a2", anna[1].ID)

	ben, err := services.ReadRecords[model.TranscriptRecord](ctx, store,
		model.ObjectRef{Bucket: artifactBucket, Key: model.ArtifactKey(model.StageTranscription, "ben", fixedNow)})
	require.NoError(t, err)
	require.Len(t, ben, 1)
	assert.Equal(t, "second", *ben[0].Transcript)
}
