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

// Package workflow. This file implements the analysis stage and its model
// fallback.
//
// Logic Flow:
//  1. An analysis job names a transcripts artifact. One AnalysisRun is created
//     per job and holds the ordered model list and the index of the current
//     model.
//  2. Items are processed one at a time. A limiter spaces calls by the
//     configured inter-item delay.
//  3. Each item is classified with the current model. A rate limit moves the
//     run to the next model (wrapping around) and the same item is retried.
//     An item gets at most one attempt per model; once all of them are used up
//     the item fails with ErrModelsExhausted.
//  4. The index is not reset between items, so a model that started rejecting
//     calls is not tried first again on the next item.
//  5. Any other failure, including a response that is not valid JSON, fails
//     the item at once. Failed items keep default values and are still written.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// AnalysisRun is the fallback state of one analysis job.
type AnalysisRun struct {
	models  []string
	current int
}

// NewAnalysisRun creates a run starting at the first of models.
func NewAnalysisRun(models []string) (*AnalysisRun, error) {
	if len(models) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "models", "no analysis models configured", nil)
	}
	return &AnalysisRun{models: append([]string(nil), models...)}, nil
}

// Current is the model the next call goes to.
func (r *AnalysisRun) Current() string {
	return r.models[r.current]
}

// Len is the number of models in the fallback list.
func (r *AnalysisRun) Len() int {
	return len(r.models)
}

// fallback moves to the next model and returns its name.
func (r *AnalysisRun) fallback() string {
	r.current = (r.current + 1) % len(r.models)
	return r.models[r.current]
}

// AnalysisWorker classifies transcribed videos.
type AnalysisWorker struct {
	engine      services.AnalysisEngine
	prompts     *services.PromptBuilder
	store       services.ArtifactStore
	bucket      string
	models      []string
	limiter     *rate.Limiter
	itemCounter metric.Int64Counter
	Now         func() time.Time // Clock for processed_at; defaults to time.Now.
}

// NewAnalysisWorker creates the analysis stage worker.
//
// Inputs:
//   - engine: The analysis engine.
//   - prompts: The compiled prompt template.
//   - store: The artifact store.
//   - bucket: The artifact bucket.
//   - models: The ordered fallback list.
//   - interItemDelay: The minimum spacing between items; zero disables throttling.
//
// Outputs:
//   - *AnalysisWorker: The worker.
func NewAnalysisWorker(
	engine services.AnalysisEngine,
	prompts *services.PromptBuilder,
	store services.ArtifactStore,
	bucket string,
	models []string,
	interItemDelay time.Duration) *AnalysisWorker {

	limit := rate.Inf
	if interItemDelay > 0 {
		limit = rate.Every(interItemDelay)
	}
	itemCounter, _ := otel.Meter(cor.MeterName).Int64Counter("analysis.items")
	return &AnalysisWorker{
		engine:      engine,
		prompts:     prompts,
		store:       store,
		bucket:      bucket,
		models:      models,
		limiter:     rate.NewLimiter(limit, 1),
		itemCounter: itemCounter,
		Now:         time.Now,
	}
}

// NewRun starts a new fallback run over the worker's models.
func (w *AnalysisWorker) NewRun() (*AnalysisRun, error) {
	return NewAnalysisRun(w.models)
}

// Classify produces the analysis of one item.
//
// Inputs:
//   - ctx: Cancellation for the engine calls.
//   - run: The fallback state shared by the items of a job.
//   - title, description, transcript: The item; transcript may be nil.
//
// Outputs:
//   - *model.Analysis: The parsed judgment.
//   - error: ErrModelsExhausted after one rate limited attempt per model, or the
//     first error that is not a rate limit.
func (w *AnalysisWorker) Classify(ctx context.Context, run *AnalysisRun, title, description string, transcript *string) (*model.Analysis, error) {
	prompt, err := w.prompts.Build(title, description, transcript)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= run.Len(); attempt++ {
		name := run.Current()
		response, err := w.engine.Analyze(ctx, name, prompt)
		if err == nil {
			return services.ParseAnalysis(response)
		}
		if !errors.Is(err, services.ErrRateLimited) {
			return nil, err
		}
		next := run.fallback()
		slog.WarnContext(ctx, "model rate limited", "model", name, "next_model", next, "attempt", attempt, "models", run.Len())
	}
	return nil, services.Wrap(services.ErrModelsExhausted, "analysis", "classify",
		fmt.Sprintf("all %d models rate limited", run.Len()), nil)
}

// Process analyzes items sequentially and returns one record per item, in
// order. It only fails when ctx is done.
func (w *AnalysisWorker) Process(ctx context.Context, run *AnalysisRun, items []model.TranscriptRecord) ([]model.AnalysisRecord, error) {
	out := make([]model.AnalysisRecord, 0, len(items))
	for _, item := range items {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		rec := model.NewAnalysisRecord(item)
		analysis, err := w.Classify(ctx, run, item.Title, item.Description, item.Transcript)
		result := model.Ok(item.ID, analysis)
		if err != nil {
			result = model.Failed[*model.Analysis](item.ID, err)
		}

		switch {
		case result.OK():
			rec.Apply(result.Value)
			w.count(ctx, "succeeded")
		case errors.Is(result.Err, services.ErrModelsExhausted):
			slog.ErrorContext(ctx, "analysis failed", "id", item.ID, "profile", item.Profile, "reason", "models_exhausted", "error", result.Err)
			w.count(ctx, "models_exhausted")
		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "analysis failed", "id", item.ID, "profile", item.Profile, "reason", "item_failed", "error", result.Err)
			w.count(ctx, "item_failed")
		}
		out = append(out, rec)
	}
	return out, nil
}

func (w *AnalysisWorker) count(ctx context.Context, outcome string) {
	if w.itemCounter != nil {
		w.itemCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// RunJob analyzes the transcripts artifact named by the job and writes one
// analysis partition per profile.
func (w *AnalysisWorker) RunJob(ctx context.Context, job *model.JobRequest) error {
	source, err := job.Source()
	if err != nil {
		return services.Wrap(services.ErrValidation, "analysis", "job", job.ID, err)
	}
	run, err := w.NewRun()
	if err != nil {
		return err
	}
	transcripts, err := services.ReadRecords[model.TranscriptRecord](ctx, w.store, source)
	if err != nil {
		return err
	}

	profiles, groups := groupByProfile(transcripts, func(t model.TranscriptRecord) string { return t.Profile })
	var errs []error
	for _, profile := range profiles {
		records, err := w.Process(ctx, run, groups[profile])
		if err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", profile, err))
			break
		}
		processedAt := w.Now().UTC().Truncate(time.Second)
		if _, err := writePartition(ctx, w.store, w.bucket, model.StageAnalysis, profile, processedAt, records); err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", profile, err))
		}
	}
	return errors.Join(errs...)
}
