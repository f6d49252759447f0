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
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/spf13/cobra"
)

func newSignCommand(ctx *commandContext) *cobra.Command {
	var key string
	var bucket string
	var expires time.Duration

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a signed download link for an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClients(cmd.Context(), func(config *cloud.Config, clients *cloud.ServiceClients) error {
				if err := clients.EnableIAM(cmd.Context()); err != nil {
					return err
				}
				if bucket == "" {
					bucket = config.Storage.ArtifactBucket
				}
				signer := cloud.NewArtifactURLSigner(clients.IAMClient, config.Application.SignerServiceAccountEmail)
				url, err := signer.SignedURL(cmd.Context(), model.ObjectRef{Bucket: bucket, Key: key}, expires)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Artifact key, e.g. videos/text/profile=<p>/processed_at=<t>/text.json")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket (default storage.artifact_bucket)")
	cmd.Flags().DurationVar(&expires, "expires", time.Hour, "Link lifetime")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
