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

// Package cloud defines the configuration of the pipeline, loaded from TOML
// files, and the adapters that bind the pipeline's contracts to Google Cloud.
//
// This file centralizes all configuration structs.
//
// Structs:
//   - Storage: the artifact bucket and the batch job prefix.
//   - BigQueryDataSource: dataset and tables used by the registry, the cursor and stats.
//   - TopicSubscription: a Pub/Sub subscription consumed by the process.
//   - StageQueue: the job topic and definition used for one stage.
//   - Registry: dialect and poll policy for partition registration.
//   - AnalysisConfig: models, throttling and prompt of the analysis stage.
//   - TranscriptionConfig: the whisperx binary and per-profile cap.
//   - FetcherConfig: the yt-dlp binary and site.
//   - Config: the root struct.
package cloud

import (
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"google.golang.org/genai"
)

// DefaultSafetySettings lets every harm category through. Video descriptions
// are classified, not moderated.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Storage holds the artifact bucket settings.
type Storage struct {
	ArtifactBucket string `toml:"artifact_bucket"` // Bucket holding every stage's partitions.
	BatchPrefix    string `toml:"batch_prefix"`    // Prefix of uploaded profile lists, e.g. "batch-jobs".
}

// BigQueryDataSource names the dataset and tables the pipeline queries.
type BigQueryDataSource struct {
	DatasetName     string `toml:"dataset"`          // Dataset holding the stage tables.
	PartitionsTable string `toml:"partitions_table"` // Partition catalog table.
	CursorTable     string `toml:"cursor_table"`     // Cursor table.
	MinVideos       int    `toml:"min_videos"`       // Smallest group reported by the stats queries.
	TopKeywords     int    `toml:"top_keywords"`     // Keywords kept per group by the keyword report.
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name                   string `toml:"name"`                     // The name of the Pub/Sub subscription.
	DeadLetterTopic        string `toml:"dead_letter_topic"`        // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds       int    `toml:"timeout_in_seconds"`       // Upper bound on processing one message.
	MaxOutstandingMessages int    `toml:"max_outstanding_messages"` // Zero keeps the client default.
}

// StageQueue is where jobs for a stage are published.
type StageQueue struct {
	Topic         string `toml:"topic"`          // Pub/Sub topic receiving JobRequests.
	JobDefinition string `toml:"job_definition"` // Worker definition, e.g. a Cloud Run job name.
}

// Registry configures partition registration.
type Registry struct {
	Dialect         string `toml:"dialect"`           // "bigquery" or "hive".
	Database        string `toml:"database"`          // Database used by the hive dialect.
	PollIntervalMs  int    `toml:"poll_interval_ms"`  // Delay between status reads.
	PollMaxAttempts int    `toml:"poll_max_attempts"` // Status reads before giving up.
	Location        string `toml:"location"`          // BigQuery job location.
}

// PollInterval is PollIntervalMs as a duration.
func (r Registry) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

// AnalysisConfig configures the analysis stage.
type AnalysisConfig struct {
	Models           []string `toml:"models"`              // Ordered fallback list.
	InterItemDelayMs int      `toml:"inter_item_delay_ms"` // Minimum spacing between items.
	SecretRef        string   `toml:"secret_ref"`          // Credential reference; empty uses application default credentials.
	PromptTemplate   string   `toml:"prompt_template"`     // text/template; empty uses the built-in prompt.
	Categories       []string `toml:"categories"`          // Empty uses the built-in categories.
	Temperature      float32  `toml:"temperature"`
	MaxTokens        int32    `toml:"max_tokens"`
	OutputFormat     string   `toml:"output_format"` // Response MIME type.
}

// InterItemDelay is InterItemDelayMs as a duration.
func (a AnalysisConfig) InterItemDelay() time.Duration {
	return time.Duration(a.InterItemDelayMs) * time.Millisecond
}

// TranscriptionConfig configures the transcription stage.
type TranscriptionConfig struct {
	Binary             string `toml:"binary"`
	Model              string `toml:"model"`
	Device             string `toml:"device"`
	ComputeType        string `toml:"compute_type"`
	BatchSize          int    `toml:"batch_size"`
	Language           string `toml:"language"`
	MaxItemsPerProfile int    `toml:"max_items_per_profile"`
}

// FetcherConfig configures content acquisition.
type FetcherConfig struct {
	Binary         string   `toml:"binary"`
	BaseURL        string   `toml:"base_url"`
	AudioFormat    string   `toml:"audio_format"`
	ExtraArgs      []string `toml:"extra_args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Timeout is TimeoutSeconds as a duration.
func (f FetcherConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Config represents the overall configuration for the application, loaded from TOML files.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		TelemetryEnabled          bool   `toml:"telemetry_enabled"`
		ScratchDir                string `toml:"scratch_dir"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
		HTTPAddress               string `toml:"http_address"`
	} `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name, e.g. "artifacts" or "analysis_jobs".
	Queues             map[string]StageQueue        `toml:"queues"`              // Keyed by stage name.
	Registry           Registry                     `toml:"registry"`
	Analysis           AnalysisConfig               `toml:"analysis"`
	Transcription      TranscriptionConfig          `toml:"transcription"`
	Fetcher            FetcherConfig                `toml:"fetcher"`
}

// NewConfig creates a Config with its maps initialized.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		Queues:             make(map[string]StageQueue),
	}
}

// JobSubscriptionKey is the topic_subscriptions key a stage worker pulls its
// jobs from.
func JobSubscriptionKey(stage model.Stage) string {
	return string(stage) + "_jobs"
}

// Routes maps every configured queue to its stage.
func (c *Config) Routes() (map[model.Stage]services.QueueRoute, error) {
	out := make(map[model.Stage]services.QueueRoute, len(c.Queues))
	for name, q := range c.Queues {
		stage, err := model.ParseStage(name)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "config", "queues", fmt.Sprintf("queue key %q", name), err)
		}
		out[stage] = services.QueueRoute{Queue: q.Topic, JobDefinition: q.JobDefinition}
	}
	return out, nil
}
