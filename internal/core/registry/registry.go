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

// Package registry makes newly written partitions visible to the query engine.
//
// Logic Flow for AddPartition:
//  1. The catalog is asked for the location already recorded for
//     (table, profile, processed_at).
//  2. A matching location is a no-op. A different location is a conflict and
//     is returned as ErrPartitionConflict without touching the catalog.
//  3. Otherwise the dialect's add-if-not-exists statement is started and
//     polled with WaitForCompletion until it reaches a terminal state.
//  4. Failed and cancelled statements are transient. A poll that runs out of
//     attempts is ErrRegistryTimeout, which is also transient.
//  5. After a successful statement the location is read back. Add-if-not-exists
//     leaves a concurrently registered location in place, so a different
//     location is reported as ErrPartitionConflict.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// ErrRegistryTimeout is returned when a registration did not finish within
// the poll policy. It matches both services.ErrTimeout and services.ErrTransient.
var ErrRegistryTimeout = fmt.Errorf("partition registration timed out: %w: %w", services.ErrTimeout, services.ErrTransient)

// Catalog is the metadata service that holds the partition list.
type Catalog interface {
	StatusReader
	// Start begins executing statement and returns its execution id.
	Start(ctx context.Context, statement string) (string, error)
	// Lookup returns the recorded location of a partition, if any.
	Lookup(ctx context.Context, table, profile, processedAt string) (string, bool, error)
	// List returns the partitions of one profile of a table.
	List(ctx context.Context, table, profile string) ([]model.Partition, error)
}

// Registry registers partitions through a Catalog.
type Registry struct {
	catalog Catalog
	dialect Dialect
	policy  PollPolicy
}

// NewRegistry creates a registry. A zero policy uses DefaultPollPolicy.
func NewRegistry(catalog Catalog, dialect Dialect, policy PollPolicy) *Registry {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPollPolicy
	}
	return &Registry{catalog: catalog, dialect: dialect, policy: policy}
}

// AddPartition registers (table, profile, processedAt) at location. Calling it
// again with the same arguments is a no-op.
func (r *Registry) AddPartition(ctx context.Context, table, profile, processedAt, location string) error {
	existing, found, err := r.catalog.Lookup(ctx, table, profile, processedAt)
	if err != nil {
		return services.Wrap(services.ErrTransient, "registry", "lookup", table, err)
	}
	if found {
		if existing == location {
			slog.Debug("partition already registered", "table", table, "profile", profile, "processed_at", processedAt)
			return nil
		}
		return services.Wrap(services.ErrPartitionConflict, "registry", "add",
			fmt.Sprintf("%s profile=%s processed_at=%s is registered at %s, not %s", table, profile, processedAt, existing, location), nil)
	}

	statement := r.dialect.AddPartition(model.Partition{
		Table:       table,
		Profile:     profile,
		ProcessedAt: processedAt,
		Location:    location,
	})
	executionID, err := r.catalog.Start(ctx, statement)
	if err != nil {
		return services.Wrap(services.ErrTransient, "registry", "start", table, err)
	}

	result := WaitForCompletion(ctx, r.catalog, executionID, r.policy)
	switch result.Outcome {
	case OutcomeSucceeded:
		if err := r.verify(ctx, table, profile, processedAt, location); err != nil {
			return err
		}
		slog.Info("partition registered", "table", table, "profile", profile, "processed_at", processedAt, "location", location, "attempts", result.Attempts)
		return nil
	case OutcomeTimedOut:
		return services.Wrap(ErrRegistryTimeout, "registry", "poll",
			fmt.Sprintf("execution %s after %d attempts", executionID, result.Attempts), result.Err)
	default:
		return services.Wrap(services.ErrTransient, "registry", "poll",
			fmt.Sprintf("execution %s %s: %s", executionID, result.Outcome, result.Reason), result.Err)
	}
}

func (r *Registry) verify(ctx context.Context, table, profile, processedAt, location string) error {
	stored, found, err := r.catalog.Lookup(ctx, table, profile, processedAt)
	if err != nil {
		return services.Wrap(services.ErrTransient, "registry", "verify", table, err)
	}
	if !found {
		slog.Debug("registered partition not yet visible", "table", table, "profile", profile, "processed_at", processedAt)
		return nil
	}
	if stored != location {
		return services.Wrap(services.ErrPartitionConflict, "registry", "verify",
			fmt.Sprintf("%s profile=%s processed_at=%s was registered at %s concurrently, not %s", table, profile, processedAt, stored, location), nil)
	}
	return nil
}

// Register is AddPartition for a Partition value.
func (r *Registry) Register(ctx context.Context, p model.Partition) error {
	return r.AddPartition(ctx, p.Table, p.Profile, p.ProcessedAt, p.Location)
}

// ListPartitions returns the registered partitions of one profile of a table.
func (r *Registry) ListPartitions(ctx context.Context, table, profile string) ([]model.Partition, error) {
	out, err := r.catalog.List(ctx, table, profile)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "registry", "list", table, err)
	}
	return out, nil
}

// PlanRepair lists the distinct partitions of stage present in bucket, in
// listing order. Keys that do not match the layout are skipped.
func PlanRepair(ctx context.Context, store services.ArtifactStore, bucket string, stage model.Stage) ([]model.Partition, error) {
	keys, err := store.List(ctx, bucket, stage.Prefix()+"/")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "registry", "repair", "list "+stage.Prefix(), err)
	}

	seen := make(map[string]bool)
	out := make([]model.Partition, 0)
	for _, key := range keys {
		parsed, err := model.ParsePartitionKey(key)
		if err != nil {
			slog.Debug("skipping key during repair", "key", key, "error", err)
			continue
		}
		if seen[parsed.Dir()] {
			continue
		}
		seen[parsed.Dir()] = true
		out = append(out, parsed.Partition(bucket))
	}
	return out, nil
}

// RepairPartitions scans bucket for every partition of stage and registers
// each one. Registration errors are collected and the scan continues.
//
// Outputs:
//   - int: the number of distinct partitions registered or already present.
//   - error: the joined registration errors, or the listing error.
func (r *Registry) RepairPartitions(ctx context.Context, store services.ArtifactStore, bucket string, stage model.Stage) (int, error) {
	partitions, err := PlanRepair(ctx, store, bucket, stage)
	if err != nil {
		return 0, err
	}

	var errs []error
	count := 0
	for _, p := range partitions {
		if err := r.Register(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}
