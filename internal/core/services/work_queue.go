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

package services

import (
	"context"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// WorkQueue accepts jobs for asynchronous execution by stage workers.
type WorkQueue interface {
	// Submit enqueues job on job.Queue and returns the queue's message id.
	Submit(ctx context.Context, job *model.JobRequest) (string, error)
}

// QueueRoute names where jobs for one stage are sent and which worker
// definition runs them.
type QueueRoute struct {
	Queue         string
	JobDefinition string
}
