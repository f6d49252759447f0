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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// first command of the stage dispatcher.
//
// Logic Flow:
// Cloud Storage publishes a notification to Pub/Sub whenever an object in the
// artifact bucket changes. This command turns that notification into the
// object reference the rest of the chain works with.
//
//  1. The event type is read from the message attributes. Anything other than
//     OBJECT_FINALIZE (deletes, metadata updates, archives) halts the chain.
//  2. The raw message data is unmarshaled into a cloud.GCSPubSubNotification.
//     A payload that is not a notification halts the chain: redelivering it
//     can never produce a different result.
//  3. The bucket and object name are stored as a model.ObjectRef under
//     CtxObjectRef and passed to the next command.
package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// CtxObjectRef holds the model.ObjectRef of the artifact that triggered the chain.
const CtxObjectRef = "__OBJECT_REF__"

// ArtifactEventReader parses a Cloud Storage notification into a model.ObjectRef.
type ArtifactEventReader struct {
	cor.BaseCommand
}

// NewArtifactEventReader is the constructor for the ArtifactEventReader command.
//
// Inputs:
//   - name: A string name for this command instance.
//
// Outputs:
//   - *ArtifactEventReader: A pointer to the newly instantiated command.
func NewArtifactEventReader(name string) *ArtifactEventReader {
	return &ArtifactEventReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute decodes the notification held under the input parameter.
func (c *ArtifactEventReader) Execute(context cor.Context) {
	if eventType := cor.Attributes(context)[cloud.AttributeEventType]; eventType != cloud.EventTypeObjectFinalize {
		context.Halt(fmt.Sprintf("ignored event type %q", eventType))
		return
	}

	in, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		context.Halt("notification payload is not text")
		return
	}

	var out cloud.GCSPubSubNotification
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		slog.WarnContext(context.GetContext(), "dropping undecodable notification", "command", c.GetName(), "error", err)
		context.Halt(fmt.Sprintf("failed to unmarshal notification: %v", err))
		return
	}
	if out.Bucket == "" || out.Name == "" {
		context.Halt("notification has no bucket or object name")
		return
	}

	ref := out.Ref()
	context.Add(CtxObjectRef, ref)
	c.Succeed(context, ref)
}

// objectRef returns the triggering reference stored by ArtifactEventReader.
func objectRef(context cor.Context) (model.ObjectRef, bool) {
	ref, ok := context.Get(CtxObjectRef).(model.ObjectRef)
	return ref, ok
}
