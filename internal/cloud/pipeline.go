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

package cloud

import (
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cursor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/registry"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// PollPolicy returns the configured poll policy, falling back to
// registry.DefaultPollPolicy for unset values.
func (r Registry) PollPolicy() registry.PollPolicy {
	policy := registry.DefaultPollPolicy
	if r.PollIntervalMs > 0 {
		policy.Interval = r.PollInterval()
	}
	if r.PollMaxAttempts > 0 {
		policy.MaxAttempts = r.PollMaxAttempts
	}
	return policy
}

// NewPartitionCatalog creates the BigQuery catalog named by the configuration.
func NewPartitionCatalog(config *Config, clients *ServiceClients) *BigQueryCatalog {
	return NewBigQueryCatalog(clients.BiqQueryClient,
		config.BigQueryDataSource.DatasetName,
		config.BigQueryDataSource.PartitionsTable,
		config.Registry.Location)
}

// NewPartitionRegistry creates the registry the dispatcher registers with. The
// BigQuery catalog only executes the bigquery dialect; any other configured
// dialect is a configuration error here.
func NewPartitionRegistry(config *Config, clients *ServiceClients) (*registry.Registry, error) {
	catalog := NewPartitionCatalog(config, clients)
	dialect, err := registry.NewDialect(config.Registry.Dialect, config.Registry.Database, catalog.Dialect().CatalogTable)
	if err != nil {
		return nil, err
	}
	if dialect.Name() != catalog.Dialect().Name() {
		return nil, services.Wrap(services.ErrConfiguration, "registry", "dialect",
			"dialect "+dialect.Name()+" cannot be executed by the bigquery catalog", nil)
	}
	return registry.NewRegistry(catalog, dialect, config.Registry.PollPolicy()), nil
}

// NewCursorSource returns the BigQuery cursor table when one is configured and
// otherwise derives cursors from the partitions in the artifact bucket.
func NewCursorSource(config *Config, clients *ServiceClients, store services.ArtifactStore) cursor.Source {
	if table := config.BigQueryDataSource.CursorTable; table != "" {
		return NewBigQueryCursorSource(clients.BiqQueryClient, config.BigQueryDataSource.DatasetName, table, config.Registry.Location)
	}
	return &cursor.StoreSource{Store: store, Bucket: config.Storage.ArtifactBucket}
}

// NewStatsService creates the reports over the metadata and analysis stage
// tables.
func NewStatsService(config *Config, clients *ServiceClients) *services.StatsService {
	return &services.StatsService{
		BigqueryClient: clients.BiqQueryClient,
		DatasetName:    config.BigQueryDataSource.DatasetName,
		MetadataTable:  model.StageMetadata.Table(),
		AnalysisTable:  model.StageAnalysis.Table(),
		MinVideos:      config.BigQueryDataSource.MinVideos,
		TopKeywords:    config.BigQueryDataSource.TopKeywords,
	}
}
