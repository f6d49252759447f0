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

// Package cloud. This file binds the partition catalog and the cursor table to
// BigQuery.
//
// Logic Flow for a registration:
//  1. Lookup reads the catalog table for an existing row.
//  2. Start submits the MERGE as a BigQuery job and returns the job id.
//  3. Status reads the job by id. Pending and Running map to Queued and
//     Running; Done maps to Succeeded, or to Failed when the job carries an
//     error. A job stopped by a user is reported as Cancelled.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/registry"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"google.golang.org/api/iterator"
)

// FullyQualifiedTable returns project.dataset.table for use inside SQL.
func FullyQualifiedTable(client *bigquery.Client, dataset, table string) string {
	return strings.Replace(client.Dataset(dataset).Table(table).FullyQualifiedName(), ":", ".", -1)
}

// BigQueryCatalog is a registry.Catalog over a partition catalog table.
type BigQueryCatalog struct {
	client   *bigquery.Client
	dialect  registry.BigQueryDialect
	location string
}

// NewBigQueryCatalog creates a catalog over dataset.table.
func NewBigQueryCatalog(client *bigquery.Client, dataset, table, location string) *BigQueryCatalog {
	return &BigQueryCatalog{
		client:   client,
		dialect:  registry.BigQueryDialect{CatalogTable: FullyQualifiedTable(client, dataset, table)},
		location: location,
	}
}

// Dialect is the statement dialect this catalog executes.
func (c *BigQueryCatalog) Dialect() registry.BigQueryDialect {
	return c.dialect
}

func (c *BigQueryCatalog) Start(ctx context.Context, statement string) (string, error) {
	q := c.client.Query(statement)
	q.Location = c.location
	job, err := q.Run(ctx)
	if err != nil {
		return "", err
	}
	return job.ID(), nil
}

func (c *BigQueryCatalog) Status(ctx context.Context, executionID string) (registry.ExecutionStatus, error) {
	job, err := c.client.JobFromIDLocation(ctx, executionID, c.location)
	if err != nil {
		return registry.ExecutionStatus{}, err
	}
	status, err := job.Status(ctx)
	if err != nil {
		return registry.ExecutionStatus{}, err
	}
	return executionStatus(status), nil
}

func executionStatus(status *bigquery.JobStatus) registry.ExecutionStatus {
	switch status.State {
	case bigquery.Pending:
		return registry.ExecutionStatus{State: registry.StateQueued}
	case bigquery.Running:
		return registry.ExecutionStatus{State: registry.StateRunning}
	}
	jobErr := status.Err()
	if jobErr == nil {
		return registry.ExecutionStatus{State: registry.StateSucceeded}
	}
	var bqErr *bigquery.Error
	if errors.As(jobErr, &bqErr) && bqErr.Reason == "stopped" {
		return registry.ExecutionStatus{State: registry.StateCancelled, Reason: bqErr.Message}
	}
	return registry.ExecutionStatus{State: registry.StateFailed, Reason: jobErr.Error()}
}

func (c *BigQueryCatalog) Lookup(ctx context.Context, table, profile, processedAt string) (string, bool, error) {
	q := c.client.Query(c.dialect.LookupLocation(table, profile, processedAt))
	q.Location = c.location
	itr, err := q.Read(ctx)
	if err != nil {
		return "", false, err
	}
	var row struct {
		Location string `bigquery:"location"`
	}
	err = itr.Next(&row)
	if err == iterator.Done {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Location, true, nil
}

func (c *BigQueryCatalog) List(ctx context.Context, table, profile string) ([]model.Partition, error) {
	q := c.client.Query(c.dialect.ListPartitions(table, profile))
	q.Location = c.location
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Partition, 0)
	for {
		var p model.Partition
		err := itr.Next(&p)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate partitions: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// BigQueryCursorSource persists cursors in a table of
// (profile STRING, stage STRING, last_processed_at TIMESTAMP) rows.
type BigQueryCursorSource struct {
	client   *bigquery.Client
	table    string
	location string
}

// NewBigQueryCursorSource creates a cursor source over dataset.table.
func NewBigQueryCursorSource(client *bigquery.Client, dataset, table, location string) *BigQueryCursorSource {
	return &BigQueryCursorSource{
		client:   client,
		table:    FullyQualifiedTable(client, dataset, table),
		location: location,
	}
}

type cursorRow struct {
	Profile         string    `bigquery:"profile"`
	Stage           string    `bigquery:"stage"`
	LastProcessedAt time.Time `bigquery:"last_processed_at"`
}

// CursorStatement renders the select for profile and stage.
func (s *BigQueryCursorSource) CursorStatement(profile string, stage model.Stage) string {
	return fmt.Sprintf(services.QrySelectCursor, s.table,
		services.QuoteBigQueryLiteral(profile),
		services.QuoteBigQueryLiteral(string(stage)))
}

// AdvanceStatement renders the forward-only merge for cursor.
func (s *BigQueryCursorSource) AdvanceStatement(cursor model.ProfileCursor) string {
	return fmt.Sprintf(services.QryMergeCursor, s.table,
		services.QuoteBigQueryLiteral(cursor.Profile),
		services.QuoteBigQueryLiteral(string(cursor.Stage)),
		cursor.LastProcessedAt.UTC().Format(time.RFC3339))
}

func (s *BigQueryCursorSource) LatestProcessedAt(ctx context.Context, profile string, stage model.Stage) (time.Time, bool, error) {
	q := s.client.Query(s.CursorStatement(profile, stage))
	q.Location = s.location
	itr, err := q.Read(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	var row cursorRow
	err = itr.Next(&row)
	if err == iterator.Done {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return row.LastProcessedAt.UTC(), true, nil
}

// Advance runs the merge and waits for it to finish.
func (s *BigQueryCursorSource) Advance(ctx context.Context, cursor model.ProfileCursor) error {
	q := s.client.Query(s.AdvanceStatement(cursor))
	q.Location = s.location
	job, err := q.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}
