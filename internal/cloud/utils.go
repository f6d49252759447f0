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

// Package cloud. This file holds the hierarchical configuration loader.
//
// LoadConfig first decodes "<prefix>/.env.toml" and then decodes
// "<prefix>/.env.<runtime>.toml" over it, so the runtime file only needs the
// values it changes. The prefix comes from GCP_CONFIG_PREFIX and the runtime
// from GCP_RUNTIME, which defaults to "test".
package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX"
	EnvConfigRuntime    = "GCP_RUNTIME"
	DefaultRuntime      = "test"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime file names LoadConfig reads.
func ConfigFiles() (base string, runtime string) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = DefaultRuntime
	}
	base = filepath.Join(prefix, ConfigFileBaseName+ConfigFileExtension)
	runtime = filepath.Join(prefix, ConfigFileBaseName+ConfigSeparator+runtimeEnvironment+ConfigFileExtension)
	return base, runtime
}

// LoadConfig decodes the base file and then the runtime file into baseConfig.
// Missing files are skipped; a file that fails to decode is an error.
func LoadConfig(baseConfig interface{}) error {
	baseFile, runtimeFile := ConfigFiles()
	for _, name := range []string{baseFile, runtimeFile} {
		if !fileExists(name) {
			slog.Debug("configuration file not found", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("loaded configuration file", "file", name)
	}
	return nil
}
