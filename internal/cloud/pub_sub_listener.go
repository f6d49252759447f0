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

// Package cloud. This file defines a reusable Pub/Sub listener that hands each
// message to a Command.
//
// Logic Flow:
//  1. A PubSubListener is created for a subscription; the command is attached
//     once the workflows are built.
//  2. Listen starts a goroutine around subscription.Receive.
//  3. Each message is run through Deliver, which builds a fresh chain context
//     holding the payload as CtxIn and the attributes as CtxAttributes.
//  4. A clean or halted run is acknowledged. A run with errors is nacked so
//     Pub/Sub redelivers it, eventually to the dead-letter topic.
package cloud

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ListenerSettings tunes message flow for one subscription.
type ListenerSettings struct {
	MaxOutstandingMessages int           // Zero keeps the client default.
	MaxExtension           time.Duration // Zero keeps the client default.
}

// PubSubListener connects a subscription to a command.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener for subscriptionID.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
	settings ListenerSettings,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	if settings.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = settings.MaxOutstandingMessages
	}
	if settings.MaxExtension > 0 {
		sub.ReceiveSettings.MaxExtension = settings.MaxExtension
	}
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SettingsFor derives listener settings from a subscription's configuration.
func SettingsFor(sub TopicSubscription) ListenerSettings {
	return ListenerSettings{
		MaxOutstandingMessages: sub.MaxOutstandingMessages,
		MaxExtension:           time.Duration(sub.TimeoutInSeconds) * time.Second,
	}
}

// SetCommand attaches command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen receives messages in the background until ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			chainCtx := Deliver(msgCtx, m.command, msg.ID, msg.Data, msg.Attributes)
			if chainCtx.HasErrors() {
				msg.Nack()
				return
			}
			msg.Ack()
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}

// Deliver runs command for one message and returns the finished chain context.
// It is shared by the pull listener and the push endpoint.
func Deliver(ctx context.Context, command cor.Command, messageID string, data []byte, attributes map[string]string) cor.Context {
	tracer := otel.Tracer("message-listener")
	spanCtx, span := tracer.Start(ctx, "receive-message")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", messageID),
		attribute.String("message.event_type", attributes[AttributeEventType]),
	)

	if attributes == nil {
		attributes = map[string]string{}
	}
	chainCtx := cor.NewBaseContextWith(spanCtx, string(data))
	chainCtx.Add(cor.CtxAttributes, attributes)
	defer chainCtx.Close()

	command.Execute(chainCtx)

	switch {
	case chainCtx.HasErrors():
		span.SetStatus(codes.Error, "failed")
		for name, e := range chainCtx.GetErrors() {
			slog.ErrorContext(spanCtx, "error executing chain", "command", name, "message_id", messageID, "error", e)
		}
	case chainCtx.IsHalted():
		span.SetStatus(codes.Ok, "dropped")
		slog.InfoContext(spanCtx, "message dropped", "message_id", messageID, "reason", chainCtx.HaltReason())
	default:
		span.SetStatus(codes.Ok, "success")
	}
	return chainCtx
}
