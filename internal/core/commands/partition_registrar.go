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

// Package commands. This file registers the partition of a newly landed
// artifact with the query catalog.
//
// Logic Flow:
//  1. The parsed key and the triggering object reference are read from the
//     context.
//  2. The partition location is derived from the bucket and the key's
//     partition directory.
//  3. The registry adds the partition. Errors are recorded on the context so
//     the notification is redelivered; a conflict is surfaced the same way and
//     stays visible until an operator resolves it.
package commands

import (
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// PartitionRegistry is the part of registry.Registry the dispatcher uses.
type PartitionRegistry interface {
	Register(ctx context.Context, p model.Partition) error
}

// PartitionRegistrar adds the partition of the triggering artifact.
type PartitionRegistrar struct {
	cor.BaseCommand
	registry PartitionRegistry
}

// NewPartitionRegistrar is the constructor for the PartitionRegistrar command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - registry: The partition registry to add partitions to.
//
// Outputs:
//   - *PartitionRegistrar: A pointer to the newly instantiated command.
func NewPartitionRegistrar(name string, registry PartitionRegistry) *PartitionRegistrar {
	return &PartitionRegistrar{BaseCommand: *cor.NewBaseCommand(name), registry: registry}
}

func (c *PartitionRegistrar) Execute(context cor.Context) {
	key, ok := context.Get(c.GetInputParam()).(model.PartitionKey)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: no partition key in context", c.GetName()))
		return
	}
	ref, ok := objectRef(context)
	if !ok {
		c.Fail(context, fmt.Errorf("%s: no object reference in context", c.GetName()))
		return
	}

	partition := key.Partition(ref.Bucket)
	if err := c.registry.Register(context.GetContext(), partition); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context, key)
}
