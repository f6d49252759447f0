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

// Package main contains the setup and initialization logic for the stage
// dispatcher process.
//
// Functions:
//   - SetupOS: Points the configuration loader at the configs directory.
//   - GetConfig: Loads the configuration once.
//   - InitState: Creates the cloud clients, the partition registry, the work
//     queue and the dispatcher workflow, and starts the artifact listener.
package main

import (
	"context"
	"log"
	"os"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
)

// ArtifactSubscription is the topic_subscriptions entry carrying artifact
// notifications.
const ArtifactSubscription = "artifacts"

// StateManager holds the shared dependencies of the dispatcher.
type StateManager struct {
	config       *cloud.Config
	cloud        *cloud.ServiceClients
	queue        *cloud.PubSubWorkQueue
	dispatcher   *workflow.StageDispatcherWorkflow
	statsService *services.StatsService
}

var state = &StateManager{}

// SetupOS sets the configuration directory and runtime unless they are
// already present in the environment.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig returns the configuration, loading it on first use.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// InitState wires the dispatcher and starts listening for artifacts.
//
// This function performs the following steps:
//  1. Loads the configuration and creates the cloud clients.
//  2. Creates the partition registry over the BigQuery catalog.
//  3. Creates the Pub/Sub work queue and the stage routes.
//  4. Attaches the dispatcher workflow to the artifact subscription.
func InitState(ctx context.Context) error {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	reg, err := cloud.NewPartitionRegistry(config, cloudClients)
	if err != nil {
		return err
	}
	routes, err := config.Routes()
	if err != nil {
		return err
	}

	state.queue = cloud.NewPubSubWorkQueue(cloudClients.PubsubClient)
	state.dispatcher = workflow.NewStageDispatcherWorkflow(reg, state.queue, routes)
	state.statsService = cloud.NewStatsService(config, cloudClients)

	// Push-only deployments configure no pull subscription.
	if listener, ok := cloudClients.PubSubListeners[ArtifactSubscription]; ok {
		listener.SetCommand(state.dispatcher)
		listener.Listen(ctx)
	}
	return nil
}

// CloseState releases the work queue and the cloud clients.
func CloseState() {
	if state.queue != nil {
		state.queue.Stop()
	}
	if state.cloud != nil {
		state.cloud.Close()
	}
}
