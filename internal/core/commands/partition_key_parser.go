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
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// CtxPartitionKey holds the model.PartitionKey parsed from the triggering key.
const CtxPartitionKey = "__PARTITION_KEY__"

// PartitionKeyParser extracts the stage, profile and processed_at from an
// artifact key. Keys outside the partition layout are dropped: they are
// logged at WARN and the chain is halted, so neither the registry nor the
// work queue sees them.
type PartitionKeyParser struct {
	cor.BaseCommand
}

func NewPartitionKeyParser(name string) *PartitionKeyParser {
	return &PartitionKeyParser{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *PartitionKeyParser) Execute(context cor.Context) {
	ref, ok := context.Get(c.GetInputParam()).(model.ObjectRef)
	if !ok {
		context.Halt("no object reference to parse")
		return
	}

	key, err := model.ParsePartitionKey(ref.Key)
	if err != nil {
		slog.WarnContext(context.GetContext(), "dropping artifact with malformed key",
			"command", c.GetName(), "bucket", ref.Bucket, "key", ref.Key, "error", err)
		context.Halt("malformed key: " + ref.Key)
		return
	}

	context.Add(CtxPartitionKey, key)
	c.Succeed(context, key)
}
