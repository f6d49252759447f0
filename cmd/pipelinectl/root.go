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

package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type commandContext struct {
	configDir *string
	runtime   *string

	configOnce sync.Once
	config     *cloud.Config
	configErr  error

	clients *cloud.ServiceClients
}

func newCommandContext(configDir, runtime *string) *commandContext {
	return &commandContext{configDir: configDir, runtime: runtime}
}

func (c *commandContext) ensureConfig() (*cloud.Config, error) {
	c.configOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			c.configErr = err
			return
		}
		if dir := strings.TrimSpace(*c.configDir); dir != "" {
			_ = os.Setenv(cloud.EnvConfigFilePrefix, dir)
		}
		if rt := strings.TrimSpace(*c.runtime); rt != "" {
			_ = os.Setenv(cloud.EnvConfigRuntime, rt)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			c.configErr = err
			return
		}
		c.config = config
	})
	return c.config, c.configErr
}

// withClients runs fn with the configuration and freshly created cloud
// clients, closing the clients afterwards.
func (c *commandContext) withClients(ctx context.Context, fn func(*cloud.Config, *cloud.ServiceClients) error) error {
	config, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if c.clients == nil {
		clients, err := cloud.NewCloudServiceClients(ctx, config)
		if err != nil {
			return err
		}
		c.clients = clients
	}
	defer func() {
		c.clients.Close()
		c.clients = nil
	}()
	return fn(config, c.clients)
}

func newRootCommand() *cobra.Command {
	var configDir string
	var runtime string

	ctx := newCommandContext(&configDir, &runtime)

	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Operate the video insights pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			telemetry.SetupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding the .env TOML files (default $"+cloud.EnvConfigFilePrefix+")")
	rootCmd.PersistentFlags().StringVar(&runtime, "runtime", "", "Runtime overlay to load (default $"+cloud.EnvConfigRuntime+")")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newRepairCommand(ctx))
	rootCmd.AddCommand(newCursorCommand(ctx))
	rootCmd.AddCommand(newPartitionsCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newSignCommand(ctx))

	return rootCmd
}
