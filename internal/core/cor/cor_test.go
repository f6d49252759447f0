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

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepCommand struct {
	cor.BaseCommand
	fn  func(cor.Context)
	ran *[]string
}

func newStep(name string, ran *[]string, fn func(cor.Context)) *stepCommand {
	return &stepCommand{BaseCommand: *cor.NewBaseCommand(name), fn: fn, ran: ran}
}

func (s *stepCommand) Execute(context cor.Context) {
	*s.ran = append(*s.ran, s.GetName())
	s.fn(context)
}

func TestChainPipesOutputToInput(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("pipe")
	chain.AddCommand(newStep("double", &ran, func(c cor.Context) {
		c.Add(cor.CtxOut, c.Get(cor.CtxIn).(int)*2)
	}))
	chain.AddCommand(newStep("inc", &ran, func(c cor.Context) {
		c.Add(cor.CtxOut, c.Get(cor.CtxIn).(int)+1)
	}))
	chain.AddCommand(newStep("record", &ran, func(c cor.Context) {
		c.Add("result", c.Get(cor.CtxIn))
	}))

	ctx := cor.NewBaseContextWith(context.Background(), 4)
	defer ctx.Close()
	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Equal(t, 9, ctx.Get("result"))
	assert.Equal(t, []string{"double", "inc", "record"}, ran)
	assert.Equal(t, []string{"double", "inc", "record"}, chain.Commands())
}

func TestChainStopsOnError(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("errors")
	chain.AddCommand(newStep("fail", &ran, func(c cor.Context) {
		c.AddError("fail", errors.New("boom"))
		c.Add(cor.CtxOut, 1)
	}))
	chain.AddCommand(newStep("after", &ran, func(c cor.Context) {}))

	ctx := cor.NewBaseContextWith(context.Background(), "in")
	chain.Execute(ctx)
	assert.True(t, ctx.HasErrors())
	assert.Equal(t, []string{"fail"}, ran)

	ran = nil
	chain.ContinueOnFailure(true)
	ctx = cor.NewBaseContextWith(context.Background(), "in")
	chain.Execute(ctx)
	assert.Equal(t, []string{"fail", "after"}, ran)
}

func TestChainHaltIsNotAnError(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("halt")
	chain.ContinueOnFailure(true)
	chain.AddCommand(newStep("drop", &ran, func(c cor.Context) {
		c.Halt("not a finalize event")
		c.Halt("second reason")
	}))
	chain.AddCommand(newStep("never", &ran, func(c cor.Context) {}))

	ctx := cor.NewBaseContextWith(context.Background(), "in")
	chain.Execute(ctx)

	assert.True(t, ctx.IsHalted())
	assert.False(t, ctx.HasErrors())
	assert.Equal(t, "not a finalize event", ctx.HaltReason())
	assert.Equal(t, []string{"drop"}, ran)
}

func TestChainSkipsCommandWithoutInput(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("skip")
	chain.AddCommand(newStep("needs-input", &ran, func(c cor.Context) {}))

	ctx := cor.NewBaseContextWith(context.Background(), nil)
	chain.Execute(ctx)
	assert.Empty(t, ran)
}

func TestContextCloseRemovesTempPaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "audio.mp3")
	sub := filepath.Join(dir, "scratch")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "nested"), 0o755))

	ctx := cor.NewBaseContext()
	ctx.AddTempFile(file)
	ctx.AddTempFile(sub)
	ctx.Close()

	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sub)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, ctx.GetTempFiles())
}

func TestAttributes(t *testing.T) {
	ctx := cor.NewBaseContext()
	assert.Empty(t, cor.Attributes(ctx))
	ctx.Add(cor.CtxAttributes, map[string]string{"eventType": "OBJECT_FINALIZE"})
	assert.Equal(t, "OBJECT_FINALIZE", cor.Attributes(ctx)["eventType"])
}
