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

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JobRunner is implemented by every stage worker.
type JobRunner interface {
	RunJob(ctx context.Context, job *model.JobRequest) error
}

// StageRunner hands a decoded JobRequest to the stage worker.
type StageRunner struct {
	cor.BaseCommand
	runner JobRunner
}

func NewStageRunner(name string, runner JobRunner) *StageRunner {
	return &StageRunner{BaseCommand: *cor.NewBaseCommand(name), runner: runner}
}

func (c *StageRunner) Execute(context cor.Context) {
	job, ok := context.Get(c.GetInputParam()).(*model.JobRequest)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: no job request in context", c.GetName()))
		return
	}
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.name", job.Name),
		attribute.String("job.stage", job.Stage.String()),
	)

	start := time.Now()
	if err := c.runner.RunJob(context.GetContext(), job); err != nil {
		slog.ErrorContext(context.GetContext(), "job failed", "job_id", job.ID, "job_name", job.Name, "error", err)
		c.Fail(context, err)
		return
	}
	slog.InfoContext(context.GetContext(), "job completed", "job_id", job.ID, "job_name", job.Name, "elapsed", time.Since(start).String())
	c.Succeed(context, job)
}
