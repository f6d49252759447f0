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

package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processedAt = time.Date(2024, 11, 5, 14, 3, 9, 0, time.UTC)

func newContext(in interface{}, attributes map[string]string) cor.Context {
	chainCtx := cor.NewBaseContextWith(context.Background(), in)
	chainCtx.Add(cor.CtxAttributes, attributes)
	return chainCtx
}

func finalize() map[string]string {
	return map[string]string{cloud.AttributeEventType: cloud.EventTypeObjectFinalize}
}

func TestArtifactEventReader(t *testing.T) {
	reader := commands.NewArtifactEventReader("reader")
	chainCtx := newContext(test.GetTestArtifactNotification("bkt", "videos/text/a.json"), finalize())

	reader.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors())
	require.False(t, chainCtx.IsHalted())
	assert.Equal(t, model.ObjectRef{Bucket: "bkt", Key: "videos/text/a.json"}, chainCtx.Get(cor.CtxOut))
	assert.Equal(t, model.ObjectRef{Bucket: "bkt", Key: "videos/text/a.json"}, chainCtx.Get(commands.CtxObjectRef))
}

func TestArtifactEventReaderHalts(t *testing.T) {
	cases := map[string]cor.Context{
		"no event type": newContext(test.GetTestArtifactNotification("bkt", "k"), nil),
		"metadata update": newContext(test.GetTestArtifactNotification("bkt", "k"),
			map[string]string{cloud.AttributeEventType: "OBJECT_METADATA_UPDATE"}),
		"bad json":  newContext("[]]", finalize()),
		"no bucket": newContext(`{"name":"k"}`, finalize()),
	}
	for name, chainCtx := range cases {
		commands.NewArtifactEventReader("reader").Execute(chainCtx)
		assert.True(t, chainCtx.IsHalted(), name)
		assert.False(t, chainCtx.HasErrors(), name)
		assert.Nil(t, chainCtx.Get(cor.CtxOut), name)
	}
}

func TestPartitionKeyParser(t *testing.T) {
	key := model.ArtifactKey(model.StageTranscription, "chef", processedAt)
	chainCtx := newContext(model.ObjectRef{Bucket: "bkt", Key: key}, nil)

	commands.NewPartitionKeyParser("parser").Execute(chainCtx)
	require.False(t, chainCtx.IsHalted())
	parsed, ok := chainCtx.Get(cor.CtxOut).(model.PartitionKey)
	require.True(t, ok)
	assert.Equal(t, model.StageTranscription, parsed.Stage)
	assert.Equal(t, "chef", parsed.Profile)

	bad := newContext(model.ObjectRef{Bucket: "bkt", Key: "videos/transcripts/chef.json"}, nil)
	commands.NewPartitionKeyParser("parser").Execute(bad)
	assert.True(t, bad.IsHalted())
	assert.False(t, bad.HasErrors())
}

func TestJobSubmitterNeedsRoute(t *testing.T) {
	key, err := model.ParsePartitionKey(model.ArtifactKey(model.StageMetadata, "chef", processedAt))
	require.NoError(t, err)
	queue := &test.FakeQueue{}
	submitter := commands.NewJobSubmitter("submitter", queue, map[model.Stage]services.QueueRoute{})

	chainCtx := newContext(key, nil)
	chainCtx.Add(commands.CtxObjectRef, model.ObjectRef{Bucket: "bkt", Key: model.ArtifactKey(model.StageMetadata, "chef", processedAt)})
	submitter.Execute(chainCtx)

	require.True(t, chainCtx.HasErrors())
	for _, err := range chainCtx.GetErrors() {
		assert.True(t, errors.Is(err, services.ErrConfiguration))
	}
	assert.Empty(t, queue.Jobs)
}
