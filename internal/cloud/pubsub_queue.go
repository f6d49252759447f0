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

package cloud

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// Job message attributes.
const (
	AttributeStage         = "stage"
	AttributeJobID         = "jobId"
	AttributeJobDefinition = "jobDefinition"
)

// PubSubWorkQueue publishes JobRequests as JSON messages on the topic named
// by the job's queue.
type PubSubWorkQueue struct {
	client *pubsub.Client
	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubWorkQueue creates a queue over client.
func NewPubSubWorkQueue(client *pubsub.Client) *PubSubWorkQueue {
	return &PubSubWorkQueue{client: client, topics: make(map[string]*pubsub.Topic)}
}

func (q *PubSubWorkQueue) topic(name string) *pubsub.Topic {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.topics[name]
	if !ok {
		t = q.client.Topic(name)
		q.topics[name] = t
	}
	return t
}

// Submit publishes job and waits for the server-assigned message id.
func (q *PubSubWorkQueue) Submit(ctx context.Context, job *model.JobRequest) (string, error) {
	if job.Queue == "" {
		return "", services.Wrap(services.ErrConfiguration, "queue", "submit", "job has no queue", nil)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "queue", "encode", job.Name, err)
	}
	result := q.topic(job.Queue).Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttributeStage:         string(job.Stage),
			AttributeJobID:         job.ID,
			AttributeJobDefinition: job.JobDefinition,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "queue", "publish", job.Queue, err)
	}
	return id, nil
}

// Stop flushes and stops every topic publisher.
func (q *PubSubWorkQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.topics {
		t.Stop()
	}
}
