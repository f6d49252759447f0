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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// JobRequestReader decodes a JobRequest delivered to a stage worker. Jobs
// that cannot be decoded, that belong to another stage or that do not name
// their source artifact are halted.
type JobRequestReader struct {
	cor.BaseCommand
	stage model.Stage
}

// NewJobRequestReader creates a reader that accepts jobs for stage.
func NewJobRequestReader(name string, stage model.Stage) *JobRequestReader {
	return &JobRequestReader{BaseCommand: *cor.NewBaseCommand(name), stage: stage}
}

func (c *JobRequestReader) Execute(context cor.Context) {
	in, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		context.Halt("job payload is not text")
		return
	}

	job := &model.JobRequest{}
	if err := json.Unmarshal([]byte(in), job); err != nil {
		slog.WarnContext(context.GetContext(), "dropping undecodable job", "command", c.GetName(), "error", err)
		context.Halt(fmt.Sprintf("failed to unmarshal job: %v", err))
		return
	}
	if job.Stage != c.stage {
		slog.WarnContext(context.GetContext(), "dropping job for another stage", "job_id", job.ID, "job_stage", job.Stage, "stage", c.stage)
		context.Halt(fmt.Sprintf("job %s is for stage %q", job.ID, job.Stage))
		return
	}
	if _, err := job.Source(); err != nil {
		slog.WarnContext(context.GetContext(), "dropping job without source", "job_id", job.ID, "error", err)
		context.Halt(err.Error())
		return
	}

	c.Succeed(context, job)
}
