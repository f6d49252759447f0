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

// Package cloud. This file creates and holds the Google Cloud clients shared
// by a process.
//
// Logic Flow:
//  1. NewCloudServiceClients creates the Storage, Pub/Sub and BigQuery clients.
//  2. A PubSubListener is created for every configured topic subscription;
//     commands are attached once the workflows are built.
//  3. The Generative AI, Secret Manager and IAM clients are created on demand
//     by the processes that need them.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients holds every client of one process.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	BiqQueryClient  *bigquery.Client
	GenAIClient     *genai.Client
	SecretClient    *secretmanager.Client
	IAMClient       *credentials.IamCredentialsClient
	PubSubListeners map[string]*PubSubListener // Keyed by the topic_subscriptions name.
}

// Close releases every client that was created.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.SecretClient != nil {
		_ = c.SecretClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients creates the clients every process uses.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	bc, err := bigquery.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	subscriptions := make(map[string]*PubSubListener)
	for subKey, values := range config.TopicSubscriptions {
		actual, err := NewPubSubListener(pc, values.Name, nil, SettingsFor(values))
		if err != nil {
			return nil, err
		}
		subscriptions[subKey] = actual
	}

	cloud = &ServiceClients{
		StorageClient:   sc,
		PubsubClient:    pc,
		BiqQueryClient:  bc,
		PubSubListeners: subscriptions,
	}
	return cloud, nil
}

// EnableGenAI creates the Generative AI client. With a non empty secret
// reference the Gemini API is used with the resolved key; otherwise Vertex AI
// is used with application default credentials.
func (c *ServiceClients) EnableGenAI(ctx context.Context, config *Config) error {
	clientConfig := &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}

	if ref := config.Analysis.SecretRef; ref != "" {
		if NeedsSecretManager(ref) && c.SecretClient == nil {
			sm, err := secretmanager.NewClient(ctx)
			if err != nil {
				return err
			}
			c.SecretClient = sm
		}
		key, err := NewSecretManagerResolver(c.SecretClient).Resolve(ctx, ref)
		if err != nil {
			return err
		}
		clientConfig = &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	}

	gc, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		slog.Error("error creating genai client", "error", err)
		return err
	}
	c.GenAIClient = gc
	return nil
}

// EnableIAM creates the IAM Credentials client used for URL signing.
func (c *ServiceClients) EnableIAM(ctx context.Context) error {
	if c.IAMClient != nil {
		return nil
	}
	iamClient, err := credentials.NewIamCredentialsClient(ctx)
	if err != nil {
		return err
	}
	c.IAMClient = iamClient
	return nil
}
