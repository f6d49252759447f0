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
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/spf13/cobra"
)

const defaultBatchPrefix = "batch-jobs"

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var profilesFile string
	var groups int

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Upload profile batches and submit one metadata job per batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(profilesFile)
			if err != nil {
				return err
			}
			defer f.Close()
			profiles, err := model.ParseProfiles(f)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				return services.Wrap(services.ErrValidation, "submit", "profiles", profilesFile+" has no profiles", nil)
			}

			return ctx.withClients(cmd.Context(), func(config *cloud.Config, clients *cloud.ServiceClients) error {
				routes, err := config.Routes()
				if err != nil {
					return err
				}
				route, ok := routes[model.StageMetadata]
				if !ok {
					return services.Wrap(services.ErrConfiguration, "submit", "route", "no queue for metadata", nil)
				}
				prefix := config.Storage.BatchPrefix
				if prefix == "" {
					prefix = defaultBatchPrefix
				}

				queue := cloud.NewPubSubWorkQueue(clients.PubsubClient)
				defer queue.Stop()
				jobs, err := submitBatches(cmd.Context(), cloud.NewGCSArtifactStore(clients.StorageClient), queue, route,
					config.Storage.ArtifactBucket, prefix, profiles, groups, uuid.NewString)
				for _, job := range jobs {
					source, _ := job.Source()
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d profiles\n", job.ID, source.String(), len(job.ProfileGroup))
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&profilesFile, "profiles", "", "Newline-delimited profile list")
	cmd.Flags().IntVar(&groups, "groups", 1, "Number of metadata jobs to split the list into")
	_ = cmd.MarkFlagRequired("profiles")
	return cmd
}

// submitBatches splits profiles into groups, uploads each group as
// <prefix>/<id>/profiles.txt and submits a metadata job reading it. It stops at
// the first failure and returns the jobs submitted so far.
func submitBatches(
	ctx context.Context,
	store services.ArtifactStore,
	queue services.WorkQueue,
	route services.QueueRoute,
	bucket, prefix string,
	profiles []string,
	groups int,
	newID func() string) ([]*model.JobRequest, error) {

	jobs := make([]*model.JobRequest, 0, groups)
	for _, group := range model.SplitProfiles(profiles, groups) {
		ref := model.ObjectRef{Bucket: bucket, Key: path.Join(prefix, newID(), "profiles.txt")}
		if err := store.Put(ctx, ref, []byte(model.FormatProfiles(group)), "text/plain"); err != nil {
			return jobs, fmt.Errorf("upload %s: %w", ref, err)
		}

		job := model.NewJobRequest(model.StageMetadata, ref, group...)
		job.Queue = route.Queue
		job.JobDefinition = route.JobDefinition
		if _, err := queue.Submit(ctx, job); err != nil {
			return jobs, fmt.Errorf("submit %s: %w", job.Name, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
