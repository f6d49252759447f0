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

// Package main runs one stage worker.
//
// Logic Flow:
//  1. The stage is taken from --stage.
//  2. When SOURCE_BUCKET and SOURCE_KEY are both set the worker runs that single
//     job and exits, non-zero on failure. This is how a batch job runner such
//     as Cloud Run Jobs starts it.
//  3. Otherwise the worker pulls JobRequests from the stage's job subscription
//     one at a time until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	"github.com/jaycherian/gcp-go-video-insights/internal/telemetry"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var stageFlag string

	rootCmd := &cobra.Command{
		Use:           "worker",
		Short:         "Run a pipeline stage worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := model.ParseStage(stageFlag)
			if err != nil {
				return err
			}
			return run(cmd.Context(), stage)
		},
	}
	rootCmd.Flags().StringVar(&stageFlag, "stage", "", "Stage to run: metadata, transcription or analysis")
	_ = rootCmd.MarkFlagRequired("stage")
	return rootCmd
}

func run(parent context.Context, stage model.Stage) error {
	telemetry.SetupLogging()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config, err := GetConfig()
	if err != nil {
		return err
	}
	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("Telemetry Shutdown Failed", "error", err)
		}
	}()

	if err := InitState(ctx, config); err != nil {
		return err
	}
	defer CloseState()

	runner, err := NewJobRunner(ctx, stage)
	if err != nil {
		return err
	}

	if bucket, key := os.Getenv(model.EnvSourceBucket), os.Getenv(model.EnvSourceKey); bucket != "" && key != "" {
		return runOnce(ctx, runner, stage, model.ObjectRef{Bucket: bucket, Key: key})
	}
	return listen(ctx, config, runner, stage)
}

func runOnce(ctx context.Context, runner commands.JobRunner, stage model.Stage, source model.ObjectRef) error {
	job := model.NewJobRequest(stage, source)
	slog.InfoContext(ctx, "running single job", "job_id", job.ID, "stage", stage, "source", source.String())
	if err := runner.RunJob(ctx, job); err != nil {
		slog.ErrorContext(ctx, "job failed", "job_id", job.ID, "stage", stage, "error", err)
		return err
	}
	slog.InfoContext(ctx, "job completed", "job_id", job.ID, "stage", stage)
	return nil
}

func listen(ctx context.Context, config *cloud.Config, runner commands.JobRunner, stage model.Stage) error {
	key := cloud.JobSubscriptionKey(stage)
	sub, ok := config.TopicSubscriptions[key]
	if !ok || sub.Name == "" {
		return services.Wrap(services.ErrConfiguration, string(stage), "listen", "no topic_subscriptions."+key, nil)
	}

	// Jobs are long running and are processed one at a time.
	settings := cloud.SettingsFor(sub)
	settings.MaxOutstandingMessages = 1

	listener, err := cloud.NewPubSubListener(state.cloud.PubsubClient, sub.Name, workflow.NewStageJobWorkflow(stage, runner), settings)
	if err != nil {
		return err
	}
	listener.Listen(ctx)

	<-ctx.Done()
	slog.Info("worker stopping", "stage", stage)
	return nil
}
