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

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// groupByProfile splits items by profile, keeping the order in which each
// profile first appears.
func groupByProfile[T any](items []T, profileOf func(T) string) ([]string, map[string][]T) {
	order := make([]string, 0)
	groups := make(map[string][]T)
	for _, item := range items {
		p := profileOf(item)
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], item)
	}
	return order, groups
}

// writePartition stores records as the stage artifact of a new partition.
func writePartition[T any](
	ctx context.Context,
	store services.ArtifactStore,
	bucket string,
	stage model.Stage,
	profile string,
	processedAt time.Time,
	records []T) (model.ObjectRef, error) {

	ref := model.ObjectRef{Bucket: bucket, Key: model.ArtifactKey(stage, profile, processedAt)}
	if err := services.WriteRecords(ctx, store, ref, records); err != nil {
		return ref, fmt.Errorf("%s: write %s: %w", stage, ref.String(), err)
	}
	slog.InfoContext(ctx, "artifact written", "stage", stage, "profile", profile, "records", len(records), "ref", ref.String())
	return ref, nil
}
