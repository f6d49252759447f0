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

// Package workflow defines the high-level business logic orchestrations,
// combining commands into pipelines and hosting the stage workers. This file
// implements the stage dispatcher.
package workflow

import (
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// StageDispatcherWorkflow reacts to an artifact landing in the artifact
// bucket. It registers the artifact's partition and schedules the downstream
// stage.
//
// The workflow is attached to the artifact notification subscription and to
// the push endpoint. A run that records an error leaves the notification
// unacknowledged; a halted run (ignored event type, malformed key) is
// acknowledged.
type StageDispatcherWorkflow struct {
	cor.BaseCommand
	registry commands.PartitionRegistry
	queue    services.WorkQueue
	routes   map[model.Stage]services.QueueRoute
	chain    cor.Chain
}

// NewStageDispatcherWorkflow is the constructor for the StageDispatcherWorkflow.
//
// Inputs:
//   - registry: The partition registry.
//   - queue: The work queue downstream jobs are submitted to.
//   - routes: The queue and job definition of each stage.
//
// Returns:
//   - A pointer to a newly created and fully initialized StageDispatcherWorkflow.
func NewStageDispatcherWorkflow(
	registry commands.PartitionRegistry,
	queue services.WorkQueue,
	routes map[model.Stage]services.QueueRoute) *StageDispatcherWorkflow {

	out := &StageDispatcherWorkflow{
		BaseCommand: *cor.NewBaseCommand("stage-dispatcher"),
		registry:    registry,
		queue:       queue,
		routes:      routes,
	}
	out.initializeChain()
	return out
}

// Execute runs the dispatcher chain.
func (w *StageDispatcherWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *StageDispatcherWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	// Step 1: Turn the storage notification into an object reference.
	out.AddCommand(commands.NewArtifactEventReader("artifact-event-reader"))

	// Step 2: Derive stage, profile and processed_at from the key.
	out.AddCommand(commands.NewPartitionKeyParser("partition-key-parser"))

	// Step 3: Keep the catalog in step with the bucket.
	out.AddCommand(commands.NewPartitionRegistrar("partition-registrar", w.registry))

	// Step 4: Schedule the next stage, if there is one.
	out.AddCommand(commands.NewJobSubmitter("job-submitter", w.queue, w.routes))

	w.chain = out
}
