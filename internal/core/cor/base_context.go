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

package cor

import (
	"context"
	"log/slog"
	"os"
)

// BaseContext is the default Context. It is not safe for concurrent use; a
// context belongs to one event or job.
type BaseContext struct {
	data       map[string]interface{}
	errors     map[string]error
	tempFiles  []string
	context    context.Context
	halted     bool
	haltReason string
}

// NewBaseContext returns an empty context.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
	}
}

// NewBaseContextWith returns a context bound to ctx with in stored as the
// chain input.
func NewBaseContextWith(ctx context.Context, in interface{}) Context {
	c := NewBaseContext()
	c.SetContext(ctx)
	if in != nil {
		c.Add(CtxIn, in)
	}
	return c
}

func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close removes every registered temporary path, files and directories alike.
func (c *BaseContext) Close() {
	for _, file := range c.tempFiles {
		if err := os.RemoveAll(file); err != nil {
			slog.Warn("failed to remove temporary path", "path", file, "error", err)
		}
	}
	c.tempFiles = c.tempFiles[:0]
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

func (c *BaseContext) AddError(key string, err error) {
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

// Halt marks the execution as finished. The first reason wins.
func (c *BaseContext) Halt(reason string) {
	if c.halted {
		return
	}
	c.halted = true
	c.haltReason = reason
}

func (c *BaseContext) IsHalted() bool {
	return c.halted
}

func (c *BaseContext) HaltReason() string {
	return c.haltReason
}

// Attributes returns the message attributes stored under CtxAttributes, or an
// empty map.
func Attributes(c Context) map[string]string {
	if attrs, ok := c.Get(CtxAttributes).(map[string]string); ok {
		return attrs
	}
	return map[string]string{}
}
