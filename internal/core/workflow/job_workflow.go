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

package workflow

import (
	"fmt"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// StageJobWorkflow runs JobRequests delivered on a stage's job subscription.
type StageJobWorkflow struct {
	cor.BaseCommand
	stage  model.Stage
	runner commands.JobRunner
	chain  cor.Chain
}

// NewStageJobWorkflow creates the job workflow of stage, backed by runner.
func NewStageJobWorkflow(stage model.Stage, runner commands.JobRunner) *StageJobWorkflow {
	out := &StageJobWorkflow{
		BaseCommand: *cor.NewBaseCommand(fmt.Sprintf("%s-job", stage)),
		stage:       stage,
		runner:      runner,
	}
	out.initializeChain()
	return out
}

func (w *StageJobWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *StageJobWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewJobRequestReader(fmt.Sprintf("%s-job-reader", w.stage), w.stage))
	out.AddCommand(commands.NewStageRunner(fmt.Sprintf("%s-runner", w.stage), w.runner))
	w.chain = out
}
