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

// Package api contains the HTTP route definitions served by the dispatcher.
//
// Functions:
//   - Events: the Pub/Sub push endpoint. Each pushed artifact notification is
//     delivered to the stage dispatcher exactly like a pulled message.
//   - Stats: the engagement, keyword, duration and upload reports over the
//     stage tables.
//   - Health: a liveness check.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// PushMessage is the message of a Pub/Sub push request. Data arrives base64
// encoded and is decoded by encoding/json.
type PushMessage struct {
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes"`
	MessageID  string            `json:"messageId"`
}

// PushEnvelope is the body Pub/Sub posts to a push endpoint.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

// StatsReader reads the reports for a grouping.
type StatsReader interface {
	Engagement(ctx context.Context, group string) ([]*services.EngagementStats, error)
	Keywords(ctx context.Context, group string) ([]*services.KeywordStats, error)
	Durations(ctx context.Context, group string) ([]*services.DurationStats, error)
	UploadPatterns(ctx context.Context, group string) ([]*services.UploadPatternStats, error)
}

// Events registers the push endpoint at /events/artifacts.
//
// A delivered message answers 204 when the chain succeeded or dropped it, and
// 500 when the chain failed so that Pub/Sub redelivers it.
func Events(r *gin.RouterGroup, dispatcher cor.Command) {
	events := r.Group("/events")
	{
		events.POST("/artifacts", func(c *gin.Context) {
			var envelope PushEnvelope
			if err := c.ShouldBindJSON(&envelope); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if envelope.Message.MessageID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "message.messageId is required"})
				return
			}

			chainCtx := cloud.Deliver(c.Request.Context(), dispatcher,
				envelope.Message.MessageID, envelope.Message.Data, envelope.Message.Attributes)
			if chainCtx.HasErrors() {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "delivery failed", "message_id": envelope.Message.MessageID})
				return
			}
			c.Status(http.StatusNoContent)
		})
	}
}

// Stats registers GET /stats/<report>?group=<profile|language|category>
// for every report, plus the /stats/groups and /stats/reports listings.
func Stats(r *gin.RouterGroup, reader StatsReader) {
	stats := r.Group("/stats")
	{
		stats.GET("/groups", func(c *gin.Context) {
			c.JSON(http.StatusOK, services.StatsGroups())
		})
		stats.GET("/reports", func(c *gin.Context) {
			c.JSON(http.StatusOK, services.StatsReports())
		})
		stats.GET("/"+services.ReportEngagement, report(services.ReportEngagement, reader.Engagement))
		stats.GET("/"+services.ReportKeywords, report(services.ReportKeywords, reader.Keywords))
		stats.GET("/"+services.ReportDurations, report(services.ReportDurations, reader.Durations))
		stats.GET("/"+services.ReportUploads, report(services.ReportUploads, reader.UploadPatterns))
	}
}

func report[T any](name string, read func(context.Context, string) ([]*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		group := c.DefaultQuery("group", "profile")
		results, err := read(c.Request.Context(), group)
		if err != nil {
			if errors.Is(err, services.ErrValidation) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.ErrorContext(c.Request.Context(), "stats query failed", "report", name, "group", group, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": name + " query failed"})
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

// Health registers GET /healthz.
func Health(r *gin.RouterGroup) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
