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
	"fmt"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cursor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/spf13/cobra"
)

func newCursorCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var profile string

	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Print the latest processed_at of a profile for a stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := model.ParseStage(stageFlag)
			if err != nil {
				return err
			}
			return ctx.withClients(cmd.Context(), func(config *cloud.Config, clients *cloud.ServiceClients) error {
				store := cloud.NewGCSArtifactStore(clients.StorageClient)
				tracker := cursor.NewTracker(cloud.NewCursorSource(config, clients, store))
				at, ok, err := tracker.Cursor(cmd.Context(), profile, stage)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: never processed\n", profile, stage)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", profile, stage, model.FormatProcessedAt(at))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Stage: metadata, transcription or analysis")
	cmd.Flags().StringVar(&profile, "profile", "", "Creator profile handle")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
