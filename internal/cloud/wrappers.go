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

// Package cloud. This file implements services.AnalysisEngine over the
// Generative AI client.
//
// The engine makes exactly one call per Analyze. It does not retry and it does
// not wait: quota rejections are returned as services.ErrRateLimited so that
// the analysis worker can move on to the next model in its fallback list.
//
// Structs:
//   - GenAIAnalysisEngine: sends one prompt to a named model and returns the text.
//
// Functions:
//   - NewGenAIAnalysisEngine: builds the engine and its token counters.
//   - IsRateLimit: recognizes quota rejections from the API.
package cloud

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const statusResourceExhausted = "RESOURCE_EXHAUSTED"

// GenAIAnalysisEngine calls a Gemini model once per prompt.
type GenAIAnalysisEngine struct {
	models             *genai.Models
	config             *genai.GenerateContentConfig
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	rateLimitCounter   metric.Int64Counter
}

// NewGenAIAnalysisEngine creates an engine from the analysis configuration.
func NewGenAIAnalysisEngine(client *genai.Client, cfg AnalysisConfig) *GenAIAnalysisEngine {
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	outputFormat := cfg.OutputFormat
	if outputFormat == "" {
		outputFormat = "application/json"
	}
	meter := otel.Meter(cor.MeterName)
	inputTokens, _ := meter.Int64Counter("analysis.token.input")
	outputTokens, _ := meter.Int64Counter("analysis.token.output")
	rateLimited, _ := meter.Int64Counter("analysis.rate_limited")

	return &GenAIAnalysisEngine{
		models: client.Models,
		config: &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](temperature),
			MaxOutputTokens:   cfg.MaxTokens,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: services.AnalyzerSystemInstruction}}},
			SafetySettings:    DefaultSafetySettings,
			ResponseMIMEType:  outputFormat,
		},
		inputTokenCounter:  inputTokens,
		outputTokenCounter: outputTokens,
		rateLimitCounter:   rateLimited,
	}
}

// Analyze sends prompt to modelName and returns the concatenated text parts.
func (e *GenAIAnalysisEngine) Analyze(ctx context.Context, modelName string, prompt string) (string, error) {
	resp, err := e.models.GenerateContent(ctx, modelName, genai.Text(prompt), e.config)
	if err != nil {
		if IsRateLimit(err) {
			if e.rateLimitCounter != nil {
				e.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("model", modelName)))
			}
			return "", services.Wrap(services.ErrRateLimited, "analysis", "generate", modelName, err)
		}
		return "", services.Wrap(services.ErrTransient, "analysis", "generate", modelName, err)
	}

	if resp.UsageMetadata != nil {
		if e.inputTokenCounter != nil {
			e.inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if e.outputTokenCounter != nil {
			e.outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}

	var value strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			value.WriteString(part.Text)
		}
	}
	if value.Len() == 0 {
		slog.Warn("model returned no text", "model", modelName)
	}
	return value.String(), nil
}

// IsRateLimit reports whether err is a quota rejection: HTTP 429 or the
// RESOURCE_EXHAUSTED status.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Status == statusResourceExhausted
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == 429 || apiErrPtr.Status == statusResourceExhausted
	}
	return strings.Contains(err.Error(), statusResourceExhausted)
}
