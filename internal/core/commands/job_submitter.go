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

// Package commands. This file schedules the next stage for a registered
// artifact.
//
// Logic Flow:
//  1. The stage of the parsed key is mapped to its downstream stage. The last
//     stage has none and the command ends there.
//  2. Only the stage's own artifact file starts work. Other files landing in a
//     partition are registered but schedule nothing.
//  3. A JobRequest is built for the downstream stage with SOURCE_BUCKET and
//     SOURCE_KEY naming the artifact, routed to the downstream queue and
//     submitted.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// JobSubmitter submits the downstream JobRequest for an artifact.
type JobSubmitter struct {
	cor.BaseCommand
	queue  services.WorkQueue
	routes map[model.Stage]services.QueueRoute
}

// NewJobSubmitter is the constructor for the JobSubmitter command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - queue: The work queue jobs are submitted to.
//   - routes: The queue and job definition of every stage that receives jobs.
//
// Outputs:
//   - *JobSubmitter: A pointer to the newly instantiated command.
func NewJobSubmitter(name string, queue services.WorkQueue, routes map[model.Stage]services.QueueRoute) *JobSubmitter {
	return &JobSubmitter{BaseCommand: *cor.NewBaseCommand(name), queue: queue, routes: routes}
}

func (c *JobSubmitter) Execute(context cor.Context) {
	key, ok := context.Get(c.GetInputParam()).(model.PartitionKey)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: no partition key in context", c.GetName()))
		return
	}

	downstream, ok := key.Stage.Downstream()
	if !ok {
		c.Succeed(context, nil)
		return
	}
	if key.Artifact != key.Stage.ArtifactName() {
		slog.InfoContext(context.GetContext(), "artifact does not start a job", "stage", key.Stage, "artifact", key.Artifact)
		c.Succeed(context, nil)
		return
	}

	route, ok := c.routes[downstream]
	if !ok || route.Queue == "" {
		c.Fail(context, services.Wrap(services.ErrConfiguration, downstream.String(), "submit", "no queue configured", nil))
		return
	}
	ref, ok := objectRef(context)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: no object reference in context", c.GetName()))
		return
	}

	job := model.NewJobRequest(downstream, ref, key.Profile)
	job.Queue = route.Queue
	job.JobDefinition = route.JobDefinition

	messageID, err := c.queue.Submit(context.GetContext(), job)
	if err != nil {
		c.Fail(context, err)
		return
	}
	slog.InfoContext(context.GetContext(), "job submitted",
		"job_id", job.ID, "job_name", job.Name, "stage", job.Stage, "queue", job.Queue, "message_id", messageID)
	c.Succeed(context, job)
}
