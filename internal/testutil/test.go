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

// Package test provides utility functions, fixtures and in-memory fakes that
// support the application's test suite. It loads the test configuration once,
// produces Cloud Storage notification payloads for the artifact layout and
// implements every external contract of the pipeline without a network.
package test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
)

// StateManager caches the test configuration.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// ConfigDir returns the repository's configs directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at the test configuration.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	if err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration on first use.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}

// GetTestArtifactNotification returns the JSON payload Cloud Storage sends when
// key is finalized in bucket.
func GetTestArtifactNotification(bucket, key string) string {
	return fmt.Sprintf(`{
  "kind": "storage#object",
  "id": "%[1]s/%[2]s/1728615848664286",
  "selfLink": "https://www.googleapis.com/storage/v1/b/%[1]s/o/%[2]s",
  "name": "%[2]s",
  "bucket": "%[1]s",
  "generation": "1728615848664286",
  "metageneration": "1",
  "contentType": "application/x-ndjson",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "updated": "2024-10-11T03:04:08.672Z",
  "storageClass": "STANDARD",
  "size": "2048",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA==",
  "crc32c": "IYeSTw==",
  "etag": "CN658+yrhYkDEAE="
}`, bucket, key)
}

// GetTestVideoJSON returns one native metadata record as emitted by the fetcher.
func GetTestVideoJSON(id, uploadDate string, views int) string {
	return fmt.Sprintf(`{"id":"%s","title":"Video %[1]s","description":"about %[1]s","upload_date":"%s",`+
		`"like_count":10,"repost_count":2,"comment_count":3,"view_count":%d,"duration":12.5,`+
		`"webpage_url":"https://www.tiktok.com/@chef/video/%[1]s","channel":"Chef","uploader":"chef","timestamp":1700000000,`+
		`"track":"original sound","artist":"Chef, Friend"}`, id, uploadDate, views)
}
