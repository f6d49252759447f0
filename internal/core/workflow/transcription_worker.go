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

// Package workflow. This file implements the transcription stage.
//
// Logic Flow:
//  1. A transcription job names a metadata artifact. Its records are grouped by
//     profile and each profile is capped at MaxItemsPerProfile items.
//  2. Audio for every item of a profile is downloaded with a single fetcher
//     call into a directory created under the scratch root for this run only.
//  3. Each item is handled on its own: the file is sniffed to make sure it is
//     audio or video, transcribed, and deleted. A failure of one item leaves
//     its transcript nil and does not affect the others.
//  4. One record per input item, in input order, is written as the profile's
//     transcripts partition. The scratch directory is removed on every exit.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// DefaultMaxItemsPerProfile caps the items transcribed for one profile per job.
const DefaultMaxItemsPerProfile = 1000

// ErrNotAudio is the item failure for a download that is not a media file.
var ErrNotAudio = errors.New("downloaded file is not audio or video")

// TranscriptionWorker produces transcripts for the videos of a metadata artifact.
type TranscriptionWorker struct {
	fetcher            services.ContentFetcher
	engine             services.TranscriptionEngine
	store              services.ArtifactStore
	bucket             string
	scratchDir         string
	maxItemsPerProfile int
	Now                func() time.Time // Clock for processed_at; defaults to time.Now.
}

// NewTranscriptionWorker creates the transcription stage worker. An empty
// scratchDir uses the system temporary directory and a maxItemsPerProfile
// below one uses DefaultMaxItemsPerProfile.
func NewTranscriptionWorker(
	fetcher services.ContentFetcher,
	engine services.TranscriptionEngine,
	store services.ArtifactStore,
	bucket string,
	scratchDir string,
	maxItemsPerProfile int) *TranscriptionWorker {

	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	if maxItemsPerProfile < 1 {
		maxItemsPerProfile = DefaultMaxItemsPerProfile
	}
	return &TranscriptionWorker{
		fetcher:            fetcher,
		engine:             engine,
		store:              store,
		bucket:             bucket,
		scratchDir:         scratchDir,
		maxItemsPerProfile: maxItemsPerProfile,
		Now:                time.Now,
	}
}

// Run transcribes videos of one profile. The result has exactly one record per
// video, in the same order; items that failed have a nil transcript.
func (w *TranscriptionWorker) Run(ctx context.Context, profile string, videos []model.VideoRecord) ([]model.TranscriptRecord, error) {
	if err := os.MkdirAll(w.scratchDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "scratch", w.scratchDir, err)
	}
	dir, err := os.MkdirTemp(w.scratchDir, "transcribe-*")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "scratch", w.scratchDir, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.WarnContext(ctx, "failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}

	audio, err := w.fetcher.FetchAudio(ctx, profile, ids, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.ErrorContext(ctx, "audio download failed", "profile", profile, "items", len(ids), "error", err)
	}

	out := make([]model.TranscriptRecord, 0, len(videos))
	failed := 0
	for _, v := range videos {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result := w.transcribe(ctx, v.ID, audio[v.ID])
		rec := model.TranscriptRecord{
			ID:          v.ID,
			Profile:     profile,
			Uploader:    v.Uploader,
			Title:       v.Title,
			Description: v.Description,
		}
		if result.OK() {
			text := result.Value
			rec.Transcript = &text
		} else {
			failed++
			slog.WarnContext(ctx, "transcription failed", "profile", profile, "id", v.ID, "reason", "item_failed", "error", result.Err)
		}
		out = append(out, rec)
	}
	slog.InfoContext(ctx, "profile transcribed", "profile", profile, "items", len(out), "failed", failed)
	return out, nil
}

func (w *TranscriptionWorker) transcribe(ctx context.Context, id, path string) model.ItemResult[string] {
	if path == "" {
		return model.Failed[string](id, services.Wrap(services.ErrExternalTool, "transcription", "download", "audio not acquired", nil))
	}
	kind, err := filetype.MatchFile(path)
	if err != nil {
		return model.Failed[string](id, err)
	}
	if kind.MIME.Type != "audio" && kind.MIME.Type != "video" {
		return model.Failed[string](id, fmt.Errorf("%w: %s", ErrNotAudio, kind.MIME.Value))
	}

	segments, err := w.engine.Transcribe(ctx, path)
	if err != nil {
		return model.Failed[string](id, err)
	}
	if err := os.Remove(path); err != nil {
		slog.WarnContext(ctx, "failed to remove audio file", "path", path, "error", err)
	}
	return model.Ok(id, model.JoinSegments(segments))
}

// RunJob transcribes the metadata artifact named by the job and writes one
// transcripts partition per profile.
func (w *TranscriptionWorker) RunJob(ctx context.Context, job *model.JobRequest) error {
	source, err := job.Source()
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "job", job.ID, err)
	}
	videos, err := services.ReadRecords[model.VideoRecord](ctx, w.store, source)
	if err != nil {
		return err
	}

	profiles, groups := groupByProfile(videos, func(v model.VideoRecord) string { return v.Profile })
	var errs []error
	for _, profile := range profiles {
		items := groups[profile]
		if len(items) > w.maxItemsPerProfile {
			slog.InfoContext(ctx, "capping profile", "profile", profile, "items", len(items), "cap", w.maxItemsPerProfile)
			items = items[:w.maxItemsPerProfile]
		}
		records, err := w.Run(ctx, profile, items)
		if err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", profile, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		processedAt := w.Now().UTC().Truncate(time.Second)
		if _, err := writePartition(ctx, w.store, w.bucket, model.StageTranscription, profile, processedAt, records); err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", profile, err))
		}
	}
	return errors.Join(errs...)
}
