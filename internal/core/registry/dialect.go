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

package registry

import (
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// Dialect renders the add-if-not-exists statement for one catalog flavor.
type Dialect interface {
	Name() string
	AddPartition(p model.Partition) string
}

// HiveDialect targets Hive compatible engines.
type HiveDialect struct {
	Database string
}

func (d HiveDialect) Name() string { return "hive" }

func (d HiveDialect) AddPartition(p model.Partition) string {
	return fmt.Sprintf(services.QryAddPartitionHive,
		d.Database,
		p.Table,
		services.QuoteHiveLiteral(p.Profile),
		services.QuoteHiveLiteral(p.ProcessedAt),
		services.QuoteHiveLiteral(p.Location))
}

// BigQueryDialect records partitions as rows of a catalog table.
// CatalogTable is fully qualified, e.g. project.dataset.partitions.
type BigQueryDialect struct {
	CatalogTable string
}

func (d BigQueryDialect) Name() string { return "bigquery" }

func (d BigQueryDialect) AddPartition(p model.Partition) string {
	return fmt.Sprintf(services.QryMergePartition,
		d.CatalogTable,
		services.QuoteBigQueryLiteral(p.Table),
		services.QuoteBigQueryLiteral(p.Profile),
		services.QuoteBigQueryLiteral(p.ProcessedAt),
		services.QuoteBigQueryLiteral(p.Location))
}

// LookupLocation renders the location lookup for one partition.
func (d BigQueryDialect) LookupLocation(table, profile, processedAt string) string {
	return fmt.Sprintf(services.QrySelectPartitionLocation,
		d.CatalogTable,
		services.QuoteBigQueryLiteral(table),
		services.QuoteBigQueryLiteral(profile),
		services.QuoteBigQueryLiteral(processedAt))
}

// ListPartitions renders the listing of one profile's partitions.
func (d BigQueryDialect) ListPartitions(table, profile string) string {
	return fmt.Sprintf(services.QryListPartitions,
		d.CatalogTable,
		services.QuoteBigQueryLiteral(table),
		services.QuoteBigQueryLiteral(profile))
}

// NewDialect selects a dialect by name. An empty name is bigquery.
func NewDialect(name, database, catalogTable string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bigquery":
		return BigQueryDialect{CatalogTable: catalogTable}, nil
	case "hive":
		return HiveDialect{Database: database}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "registry", "dialect", fmt.Sprintf("unknown dialect %q", name), nil)
	}
}
