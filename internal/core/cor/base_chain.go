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

// Package cor. This file defines BaseChain, the default Chain.
//
// Logic Flow:
//  1. A span named "<chain>_execute" is opened for the whole run.
//  2. Before each command the chain stops if the context is halted, or if it
//     has errors and continueOnFailure is false.
//  3. Each executable command runs under its own child span. The Go context is
//     reset to the chain span afterwards so command spans stay siblings.
//  4. The command's CtxOut value is moved to CtxIn for the next command.
//  5. The chain span is marked failed when the context has errors.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BaseChain runs its commands sequentially.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the names of the chain's commands in order.
func (c *BaseChain) Commands() []string {
	out := make([]string, 0, len(c.commands))
	for _, command := range c.commands {
		out = append(out, command.GetName())
	}
	return out
}

// IsExecutable only needs a Go context; the first command checks the input.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	for _, command := range c.commands {
		if chCtx.IsHalted() {
			chainSpan.AddEvent("halted", trace.WithAttributes(attribute.String("reason", chCtx.HaltReason())))
			break
		}
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}

		commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		if command.IsExecutable(chCtx) {
			chCtx.SetContext(commandContext)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)
		} else {
			commandSpan.SetStatus(codes.Error, fmt.Sprintf("command not executable: %s", command.GetName()))
		}

		switch {
		case chCtx.HasErrors():
			commandSpan.SetStatus(codes.Error, "error during or after command execution")
		case chCtx.IsHalted():
			commandSpan.SetStatus(codes.Ok, "halted")
		default:
			commandSpan.SetStatus(codes.Ok, "command completed successfully")
		}
		commandSpan.End()

		outputValue := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if outputValue != nil {
			chCtx.Add(CtxIn, outputValue)
		}
		chCtx.Remove(CtxOut)
	}

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
		if c.ErrorCounter != nil {
			c.ErrorCounter.Add(outerCtx, 1)
		}
		return
	}
	chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	if c.SuccessCounter != nil {
		c.SuccessCounter.Add(outerCtx, 1)
	}
}
