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

// Package workflow. This file implements the metadata stage.
//
// Logic Flow:
//  1. A metadata job names a profiles file uploaded by pipelinectl submit.
//  2. For every profile the native records are fetched and mapped to
//     VideoRecords. Records that do not map are dropped one by one.
//  3. Records whose upload date is not after the profile's cursor are removed,
//     so a profile that has not posted since the last run writes nothing.
//  4. The remaining records are written as one partition and the cursor is
//     moved to the partition's processed_at.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cursor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// MetadataWorker fetches, filters and stores video metadata per profile.
type MetadataWorker struct {
	fetcher services.ContentFetcher
	store   services.ArtifactStore
	tracker *cursor.Tracker
	bucket  string
	Now     func() time.Time // Clock for processed_at; defaults to time.Now.
}

// NewMetadataWorker creates the metadata stage worker.
//
// Inputs:
//   - fetcher: The content client.
//   - store: The artifact store partitions are written to.
//   - tracker: The cursor tracker for the metadata stage.
//   - bucket: The artifact bucket.
//
// Outputs:
//   - *MetadataWorker: The worker.
func NewMetadataWorker(
	fetcher services.ContentFetcher,
	store services.ArtifactStore,
	tracker *cursor.Tracker,
	bucket string) *MetadataWorker {
	return &MetadataWorker{
		fetcher: fetcher,
		store:   store,
		tracker: tracker,
		bucket:  bucket,
		Now:     time.Now,
	}
}

// Run processes one profile and returns the records it wrote.
func (w *MetadataWorker) Run(ctx context.Context, profile string) ([]model.VideoRecord, error) {
	raw, err := w.fetcher.FetchMetadata(ctx, profile)
	if err != nil {
		return nil, err
	}

	results := make([]model.ItemResult[*model.VideoRecord], 0, len(raw))
	for i, r := range raw {
		rec, err := model.NewVideoRecord(profile, r)
		if err != nil {
			results = append(results, model.Failed[*model.VideoRecord](fmt.Sprintf("#%d", i), err))
			continue
		}
		results = append(results, model.Ok(rec.ID, rec))
	}

	videos := make([]model.VideoRecord, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			slog.WarnContext(ctx, "dropping unparseable metadata record", "profile", profile, "item", r.ID, "error", r.Err)
			continue
		}
		videos = append(videos, *r.Value)
	}

	fresh, err := cursor.FilterUnprocessed(ctx, w.tracker, profile, model.StageMetadata, videos)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "metadata fetched", "profile", profile, "fetched", len(raw), "parsed", len(videos), "new", len(fresh))
	if len(fresh) == 0 {
		return fresh, nil
	}

	processedAt := w.Now().UTC().Truncate(time.Second)
	if _, err := writePartition(ctx, w.store, w.bucket, model.StageMetadata, profile, processedAt, fresh); err != nil {
		return nil, err
	}
	return fresh, w.tracker.Advance(ctx, model.ProfileCursor{
		Profile:         profile,
		Stage:           model.StageMetadata,
		LastProcessedAt: processedAt,
	})
}

// RunJob runs every profile listed in the job's profiles file. A failing
// profile does not stop the others; the failures are returned together.
func (w *MetadataWorker) RunJob(ctx context.Context, job *model.JobRequest) error {
	source, err := job.Source()
	if err != nil {
		return services.Wrap(services.ErrValidation, "metadata", "job", job.ID, err)
	}
	body, err := w.store.Get(ctx, source)
	if err != nil {
		return err
	}
	profiles, err := model.ParseProfiles(bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrValidation, "metadata", "profiles", source.String(), err)
	}
	if len(profiles) == 0 {
		slog.WarnContext(ctx, "profiles file is empty", "ref", source.String())
		return nil
	}

	var errs []error
	for _, profile := range profiles {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := w.Run(ctx, profile); err != nil {
			slog.ErrorContext(ctx, "profile failed", "stage", model.StageMetadata, "profile", profile, "error", err)
			errs = append(errs, fmt.Errorf("profile %s: %w", profile, err))
		}
	}
	return errors.Join(errs...)
}
