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

// Package cursor tracks, per profile and stage, the latest processed_at that
// has been written, and filters candidate items against it.
//
// The cursor is always a partition's declared processed_at. Items are compared
// by their implied timestamp (for metadata, the upload date), never by wall
// clock time, so a re-run over the same source data yields the same result.
package cursor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// Source reads the cursor for a profile and stage.
type Source interface {
	LatestProcessedAt(ctx context.Context, profile string, stage model.Stage) (time.Time, bool, error)
}

// Advancer is implemented by sources that persist cursors themselves.
type Advancer interface {
	Advance(ctx context.Context, cursor model.ProfileCursor) error
}

// Timestamped is an item that can be compared with a cursor.
type Timestamped interface {
	ImpliedTimestamp() time.Time
}

// Tracker reads and advances cursors through a Source.
type Tracker struct {
	source Source
}

// NewTracker creates a tracker over source.
func NewTracker(source Source) *Tracker {
	return &Tracker{source: source}
}

// Cursor returns the latest processed_at for profile and stage. The boolean
// is false when nothing has been written yet.
func (t *Tracker) Cursor(ctx context.Context, profile string, stage model.Stage) (time.Time, bool, error) {
	at, ok, err := t.source.LatestProcessedAt(ctx, profile, stage)
	if err != nil {
		return time.Time{}, false, services.Wrap(services.ErrTransient, "cursor", "read", profile, err)
	}
	return at, ok, nil
}

// Advance records that cursor.LastProcessedAt was written. Sources that derive
// the cursor from the store need no explicit update and are left untouched.
func (t *Tracker) Advance(ctx context.Context, cursor model.ProfileCursor) error {
	advancer, ok := t.source.(Advancer)
	if !ok {
		return nil
	}
	if err := advancer.Advance(ctx, cursor); err != nil {
		return services.Wrap(services.ErrTransient, "cursor", "advance", cursor.Profile, err)
	}
	return nil
}

// FilterUnprocessed returns the candidates whose implied timestamp is after
// the cursor, preserving order. With no cursor every candidate is returned.
func FilterUnprocessed[T Timestamped](ctx context.Context, tracker *Tracker, profile string, stage model.Stage, candidates []T) ([]T, error) {
	cursor, ok, err := tracker.Cursor(ctx, profile, stage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return candidates, nil
	}

	out := make([]T, 0, len(candidates))
	for _, c := range candidates {
		if c.ImpliedTimestamp().After(cursor) {
			out = append(out, c)
		}
	}
	slog.Debug("filtered candidates by cursor",
		"profile", profile, "stage", stage, "cursor", model.FormatProcessedAt(cursor),
		"candidates", len(candidates), "kept", len(out))
	return out, nil
}
