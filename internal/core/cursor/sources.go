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

package cursor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// StoreSource derives the cursor from the partitions present in the artifact
// store. Keys whose processed_at does not parse are ignored.
type StoreSource struct {
	Store  services.ArtifactStore
	Bucket string
}

func (s *StoreSource) LatestProcessedAt(ctx context.Context, profile string, stage model.Stage) (time.Time, bool, error) {
	prefix := model.ProfilePrefix(stage, profile)
	keys, err := s.Store.List(ctx, s.Bucket, prefix)
	if err != nil {
		return time.Time{}, false, err
	}

	var latest time.Time
	found := false
	for _, key := range keys {
		raw, _, _ := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		at, err := model.ParseProcessedAt(raw)
		if err != nil {
			continue
		}
		if !found || at.After(latest) {
			latest = at
			found = true
		}
	}
	return latest, found, nil
}

// MemorySource keeps cursors in memory. It is safe for concurrent use.
type MemorySource struct {
	mu      sync.Mutex
	cursors map[string]time.Time
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{cursors: make(map[string]time.Time)}
}

func memoryKey(profile string, stage model.Stage) string {
	return string(stage) + "/" + profile
}

func (m *MemorySource) LatestProcessedAt(_ context.Context, profile string, stage model.Stage) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.cursors[memoryKey(profile, stage)]
	return at, ok, nil
}

// Advance only ever moves a cursor forward.
func (m *MemorySource) Advance(_ context.Context, cursor model.ProfileCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(cursor.Profile, cursor.Stage)
	if current, ok := m.cursors[key]; ok && !cursor.LastProcessedAt.After(current) {
		return nil
	}
	m.cursors[key] = cursor.LastProcessedAt.UTC()
	return nil
}
