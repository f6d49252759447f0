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

// Package cor (Chain of Responsibility) is the execution model shared by the
// dispatcher and the stage workers. Every unit of pipeline work is a Command;
// commands are grouped into a Chain and communicate through a Context.
//
// A command signals one of three outcomes through the Context:
//   - success: it writes its result to its output parameter.
//   - failure: it records an error with AddError. The event or job is retried.
//   - halt: it calls Halt. The chain stops and the input is treated as
//     consumed, which is how events that can never succeed are dropped.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CtxIn is the default input key. BaseChain fills it with the previous
	// command's output.
	CtxIn = "__IN__"
	// CtxOut is the default output key.
	CtxOut = "__OUT__"
	// CtxAttributes holds the map[string]string of message attributes that
	// arrived with the input, when the transport provides them.
	CtxAttributes = "__ATTRIBUTES__"
)

// Context is the state carried through one execution of a chain.
type Context interface {
	// SetContext replaces the Go context used for cancellation and tracing.
	SetContext(context context.Context)
	// GetContext returns the current Go context.
	GetContext() context.Context

	// Add stores value under key.
	Add(key string, value interface{}) Context
	// Get returns the value under key or nil.
	Get(key string) interface{}
	// Remove deletes key.
	Remove(key string)

	// AddError records err against the name of the command that produced it.
	AddError(key string, err error)
	// GetErrors returns every recorded error keyed by command name.
	GetErrors() map[string]error
	// HasErrors reports whether any error was recorded.
	HasErrors() bool

	// Halt stops the chain without an error. The reason is kept for logging.
	Halt(reason string)
	// IsHalted reports whether a command halted the chain.
	IsHalted() bool
	// HaltReason returns the reason given to Halt.
	HaltReason() string

	// AddTempFile registers a file or directory to be removed by Close.
	AddTempFile(file string)
	// GetTempFiles returns the registered temporary paths.
	GetTempFiles() []string
	// Close removes the temporary paths. Callers defer it.
	Close()
}

// Executable is anything with an Execute step.
type Executable interface {
	Execute(context Context)
}

// Command is one unit of work in a chain.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable is checked before Execute. A command that is not executable
	// is skipped and reported on its span.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command that runs other commands in order.
type Chain interface {
	Command

	// ContinueOnFailure keeps the chain running after a command records an
	// error. A halt always stops the chain.
	ContinueOnFailure(bool) Chain

	// AddCommand appends command to the chain.
	AddCommand(command Command) Chain
}
