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

// Package main runs the stage dispatcher. It consumes artifact notifications
// from the "artifacts" pull subscription and from the push endpoint, registers
// each landed partition and submits the downstream stage's job.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-insights/internal/api"
	"github.com/jaycherian/gcp-go-video-insights/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const defaultAddress = ":8080"

func main() {
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := GetConfig()

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	if err := InitState(ctx); err != nil {
		slog.Error("Failed to initialize state", "error", err)
		log.Fatal(err)
	}
	defer CloseState()
	slog.Info("Initialized State")

	r := gin.Default()
	r.Use(otelgin.Middleware(config.Application.Name))
	r.Use(cors.Default())

	apiV1 := r.Group("/api/v1")
	{
		api.Events(apiV1, state.dispatcher)
		api.Stats(apiV1, state.statsService)
		api.Health(apiV1)
	}

	address := config.Application.HTTPAddress
	if address == "" {
		address = defaultAddress
	}
	srv := &http.Server{
		Addr:    address,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server ready", "address", address)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	// Stop the pull listener before draining HTTP requests.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	if err := shutdown(shutdownCtx); err != nil {
		slog.Error("Telemetry Shutdown Failed", "error", err)
	}
	slog.Info("Server exiting")
}
