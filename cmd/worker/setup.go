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

// Package main contains the setup logic of a stage worker process.
//
// Functions:
//   - GetConfig: Loads the configuration once.
//   - InitState: Creates the cloud clients and the artifact store.
//   - NewJobRunner: Builds the worker of one stage with its external tools.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cursor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	"github.com/joho/godotenv"
)

// StateManager holds the shared dependencies of the worker.
type StateManager struct {
	config *cloud.Config
	cloud  *cloud.ServiceClients
	store  *cloud.GCSArtifactStore
}

var state = &StateManager{}

// SetupOS loads a local .env file, when present, and defaults the
// configuration directory and runtime.
func SetupOS() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig returns the configuration, loading it on first use.
func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			return nil, err
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitState creates the cloud clients and the artifact store.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients
	state.store = cloud.NewGCSArtifactStore(cloudClients.StorageClient)
	return nil
}

// CloseState releases the cloud clients.
func CloseState() {
	if state.cloud != nil {
		state.cloud.Close()
	}
}

func newFetcher(config *cloud.Config) *services.YtDlpFetcher {
	f := config.Fetcher
	return services.NewYtDlpFetcher(f.Binary, f.BaseURL, f.AudioFormat, f.ExtraArgs, f.Timeout())
}

// NewJobRunner builds the worker for stage.
func NewJobRunner(ctx context.Context, stage model.Stage) (commands.JobRunner, error) {
	config := state.config
	bucket := config.Storage.ArtifactBucket

	switch stage {
	case model.StageMetadata:
		tracker := cursor.NewTracker(cloud.NewCursorSource(config, state.cloud, state.store))
		return workflow.NewMetadataWorker(newFetcher(config), state.store, tracker, bucket), nil

	case model.StageTranscription:
		t := config.Transcription
		engine := &services.WhisperXEngine{
			Binary:      t.Binary,
			Model:       t.Model,
			Device:      t.Device,
			ComputeType: t.ComputeType,
			BatchSize:   t.BatchSize,
			Language:    t.Language,
		}
		slog.InfoContext(ctx, "transcription engine", "engine", engine.String())
		return workflow.NewTranscriptionWorker(newFetcher(config), engine, state.store, bucket,
			config.Application.ScratchDir, t.MaxItemsPerProfile), nil

	case model.StageAnalysis:
		if err := state.cloud.EnableGenAI(ctx, config); err != nil {
			return nil, err
		}
		prompts, err := services.NewPromptBuilder(config.Analysis.PromptTemplate, config.Analysis.Categories)
		if err != nil {
			return nil, err
		}
		engine := cloud.NewGenAIAnalysisEngine(state.cloud.GenAIClient, config.Analysis)
		return workflow.NewAnalysisWorker(engine, prompts, state.store, bucket,
			config.Analysis.Models, config.Analysis.InterItemDelay()), nil
	}
	return nil, services.Wrap(services.ErrConfiguration, "worker", "stage", "no worker for stage "+string(stage), nil)
}
