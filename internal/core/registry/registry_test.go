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

package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/registry"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPoll = registry.PollPolicy{Interval: time.Millisecond, MaxAttempts: 5}

const location = "gs://insights-artifacts/videos/metadata/profile=chef/processed_at=2024-10-11_03:04:08"

func newRegistry(catalog *test.FakeCatalog) *registry.Registry {
	return registry.NewRegistry(catalog, registry.HiveDialect{Database: "insights"}, fastPoll)
}

func TestHiveStatementShape(t *testing.T) {
	stmt := registry.HiveDialect{Database: "insights"}.AddPartition(model.Partition{
		Table:       "metadata",
		Profile:     "chef",
		ProcessedAt: "2024-10-11_03:04:08",
		Location:    location,
	})
	assert.Equal(t,
		"ALTER TABLE insights.metadata ADD IF NOT EXISTS PARTITION (profile = 'chef', processed_at = '2024-10-11_03:04:08') LOCATION '"+location+"'",
		stmt)

	quoted := registry.HiveDialect{Database: "insights"}.AddPartition(model.Partition{Table: "metadata", Profile: "o'neil"})
	assert.Contains(t, quoted, "profile = 'o''neil'")
}

func TestBigQueryStatements(t *testing.T) {
	d := registry.BigQueryDialect{CatalogTable: "proj.insights.partitions"}
	stmt := d.AddPartition(model.Partition{Table: "metadata", Profile: "o'neil", ProcessedAt: "2024-10-11_03:04:08", Location: location})
	assert.Contains(t, stmt, "MERGE `proj.insights.partitions` T")
	assert.Contains(t, stmt, `'o\'neil' AS profile`)
	assert.NotContains(t, stmt, "WHEN MATCHED")
	assert.Contains(t, d.LookupLocation("metadata", "chef", "x"), "SELECT location FROM `proj.insights.partitions`")

	_, err := registry.NewDialect("athena", "", "")
	assert.ErrorIs(t, err, services.ErrConfiguration)
	dialect, err := registry.NewDialect("", "", "t")
	require.NoError(t, err)
	assert.Equal(t, "bigquery", dialect.Name())
}

func TestAddPartitionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	catalog := test.NewFakeCatalog()
	r := newRegistry(catalog)

	require.NoError(t, r.AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location))
	require.NoError(t, r.AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location))

	assert.Len(t, catalog.Partitions, 1)
	assert.Len(t, catalog.Statements, 1)

	listed, err := r.ListPartitions(ctx, "metadata", "chef")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, location, listed[0].Location)
}

func TestAddPartitionConflict(t *testing.T) {
	ctx := context.Background()
	catalog := test.NewFakeCatalog()
	r := newRegistry(catalog)

	require.NoError(t, r.AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location))
	err := r.AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", "gs://other/place")

	assert.ErrorIs(t, err, services.ErrPartitionConflict)
	assert.False(t, services.IsRetryable(err))
	assert.Len(t, catalog.Statements, 1)
	assert.Equal(t, location, catalog.Partitions["metadata|chef|2024-10-11_03:04:08"].Location)
}

func TestAddPartitionDetectsConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	catalog := test.NewFakeCatalog()
	other := "gs://insights-artifacts/elsewhere"
	catalog.BeforeStart = func(c *test.FakeCatalog) {
		c.Partitions["metadata|chef|2024-10-11_03:04:08"] = model.Partition{
			Table: "metadata", Profile: "chef", ProcessedAt: "2024-10-11_03:04:08", Location: other,
		}
	}
	r := newRegistry(catalog)

	err := r.AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrPartitionConflict)
	assert.False(t, services.IsRetryable(err))
	assert.Len(t, catalog.Statements, 1)

	stored, found, err := catalog.Lookup(ctx, "metadata", "chef", "2024-10-11_03:04:08")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, other, stored)
}

func TestAddPartitionOutcomes(t *testing.T) {
	ctx := context.Background()

	catalog := test.NewFakeCatalog()
	catalog.RunningPolls = 3
	require.NoError(t, newRegistry(catalog).AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location))
	assert.Equal(t, 4, catalog.StatusCalls)

	catalog = test.NewFakeCatalog()
	catalog.RunningPolls = 100
	err := newRegistry(catalog).AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location)
	assert.ErrorIs(t, err, registry.ErrRegistryTimeout)
	assert.ErrorIs(t, err, services.ErrTransient)
	assert.True(t, services.IsRetryable(err))
	assert.Equal(t, fastPoll.MaxAttempts, catalog.StatusCalls)

	for _, state := range []registry.ExecutionState{registry.StateFailed, registry.StateCancelled} {
		catalog = test.NewFakeCatalog()
		catalog.Terminal = state
		err = newRegistry(catalog).AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location)
		assert.ErrorIs(t, err, services.ErrTransient, state.String())
		assert.False(t, errors.Is(err, registry.ErrRegistryTimeout), state.String())
		assert.Empty(t, catalog.Partitions)
	}

	catalog = test.NewFakeCatalog()
	catalog.LookupErr = errors.New("catalog unavailable")
	err = newRegistry(catalog).AddPartition(ctx, "metadata", "chef", "2024-10-11_03:04:08", location)
	assert.ErrorIs(t, err, services.ErrTransient)
	assert.Empty(t, catalog.Statements)
}

func TestWaitForCompletionContextCancelled(t *testing.T) {
	catalog := test.NewFakeCatalog()
	catalog.RunningPolls = 100
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := registry.WaitForCompletion(ctx, catalog, "exec-1", registry.PollPolicy{Interval: time.Hour, MaxAttempts: 10})
	assert.Equal(t, registry.OutcomeTimedOut, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestRepairPartitions(t *testing.T) {
	ctx := context.Background()
	store := test.NewMemoryStore()
	bucket := "insights-artifacts"
	for _, key := range []string{
		"videos/metadata/profile=chef/processed_at=2024-10-11_03:04:08/metadata.json",
		"videos/metadata/profile=chef/processed_at=2024-10-11_03:04:08/extra.json",
		"videos/metadata/profile=baker/processed_at=2024-10-12_00:00:00/metadata.json",
		"videos/metadata/profile=baker/processed_at=yesterday/metadata.json",
		"videos/metadata/_SUCCESS",
	} {
		require.NoError(t, store.Put(ctx, model.ObjectRef{Bucket: bucket, Key: key}, []byte("{}\n"), services.ContentTypeJSONLines))
	}

	catalog := test.NewFakeCatalog()
	count, err := newRegistry(catalog).RepairPartitions(ctx, store, bucket, model.StageMetadata)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, catalog.Partitions, 2)
	assert.Equal(t, location, catalog.Partitions["metadata|chef|2024-10-11_03:04:08"].Location)
}

func TestPlanRepairRendersWithoutExecuting(t *testing.T) {
	ctx := context.Background()
	store := test.NewMemoryStore()
	bucket := "insights-artifacts"
	for _, key := range []string{
		"videos/text/profile=chef/processed_at=2024-10-11_03:04:08/text.json",
		"videos/text/profile=chef/processed_at=2024-10-11_03:04:08/text.json.tmp",
		"videos/transcripts/profile=chef/processed_at=2024-10-11_03:04:08/transcripts.json",
	} {
		require.NoError(t, store.Put(ctx, model.ObjectRef{Bucket: bucket, Key: key}, []byte("{}\n"), services.ContentTypeJSONLines))
	}

	partitions, err := registry.PlanRepair(ctx, store, bucket, model.StageAnalysis)
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Equal(t, "text_analysis", partitions[0].Table)
	assert.Equal(t, "gs://insights-artifacts/videos/text/profile=chef/processed_at=2024-10-11_03:04:08", partitions[0].Location)

	statement := registry.HiveDialect{Database: "trends"}.AddPartition(partitions[0])
	assert.Contains(t, statement, "ALTER TABLE trends.text_analysis ADD IF NOT EXISTS PARTITION")
}
