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

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/registry"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/spf13/cobra"
)

func newRepairCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var dryRun bool
	var dialectFlag string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Register every partition of a stage found in the artifact bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := model.ParseStage(stageFlag)
			if err != nil {
				return err
			}
			return ctx.withClients(cmd.Context(), func(config *cloud.Config, clients *cloud.ServiceClients) error {
				store := cloud.NewGCSArtifactStore(clients.StorageClient)
				bucket := config.Storage.ArtifactBucket

				if dryRun {
					name := dialectFlag
					if name == "" {
						name = config.Registry.Dialect
					}
					catalog := cloud.NewPartitionCatalog(config, clients)
					dialect, err := registry.NewDialect(name, config.Registry.Database, catalog.Dialect().CatalogTable)
					if err != nil {
						return err
					}
					return printRepairPlan(cmd.Context(), cmd.OutOrStdout(), store, bucket, stage, dialect)
				}

				reg, err := cloud.NewPartitionRegistry(config, clients)
				if err != nil {
					return err
				}
				count, err := reg.RepairPartitions(cmd.Context(), store, bucket, stage)
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s partitions registered\n", count, stage)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Stage to repair: metadata, transcription or analysis")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the registration statements instead of running them")
	cmd.Flags().StringVar(&dialectFlag, "dialect", "", "Statement dialect for --dry-run: bigquery or hive (default registry.dialect)")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

// printRepairPlan writes one add-partition statement per partition of stage.
func printRepairPlan(ctx context.Context, w io.Writer, store services.ArtifactStore, bucket string, stage model.Stage, dialect registry.Dialect) error {
	partitions, err := registry.PlanRepair(ctx, store, bucket, stage)
	if err != nil {
		return err
	}
	for _, p := range partitions {
		if _, err := fmt.Fprintf(w, "%s;\n", dialect.AddPartition(p)); err != nil {
			return err
		}
	}
	return nil
}
