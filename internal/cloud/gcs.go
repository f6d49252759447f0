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

// Package cloud. This file binds the artifact store to Google Cloud Storage and
// defines the payload of Cloud Storage Pub/Sub notifications.
//
// Structs:
//   - GCSPubSubNotification: the JSON body of a bucket notification.
//   - GCSArtifactStore: services.ArtifactStore over a storage.Client.
package cloud

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Notification attribute names and the event type that starts the pipeline.
const (
	AttributeEventType      = "eventType"
	AttributeBucketID       = "bucketId"
	AttributeObjectID       = "objectId"
	EventTypeObjectFinalize = "OBJECT_FINALIZE"
)

// GCSPubSubNotification is the JSON message body Cloud Storage publishes for
// object changes.
type GCSPubSubNotification struct {
	Kind           string            `json:"kind"`
	ID             string            `json:"id"`
	SelfLink       string            `json:"selfLink"`
	Name           string            `json:"name"`
	Bucket         string            `json:"bucket"`
	Generation     string            `json:"generation"`
	MetaGeneration string            `json:"metageneration"`
	ContentType    string            `json:"contentType"`
	TimeCreated    string            `json:"timeCreated"`
	Updated        string            `json:"updated"`
	StorageClass   string            `json:"storageClass"`
	Size           string            `json:"size"`
	MD5Hash        string            `json:"md5Hash"`
	MetaData       map[string]string `json:"metadata"`
	Crc32c         string            `json:"crc32c"`
	ETag           string            `json:"etag"`
}

// Ref is the object the notification is about.
func (n GCSPubSubNotification) Ref() model.ObjectRef {
	return model.ObjectRef{Bucket: n.Bucket, Key: n.Name}
}

// GCSArtifactStore stores artifacts in Cloud Storage.
type GCSArtifactStore struct {
	client *storage.Client
}

// NewGCSArtifactStore creates a store over client.
func NewGCSArtifactStore(client *storage.Client) *GCSArtifactStore {
	return &GCSArtifactStore{client: client}
}

// Put writes body only if the object does not exist yet.
func (s *GCSArtifactStore) Put(ctx context.Context, ref model.ObjectRef, body []byte, contentType string) error {
	obj := s.client.Bucket(ref.Bucket).Object(ref.Key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return services.Wrap(services.ErrTransient, "store", "put", ref.String(), err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 412 {
			return services.Wrap(services.ErrAlreadyExists, "store", "put", ref.String(), err)
		}
		return services.Wrap(services.ErrTransient, "store", "put", ref.String(), err)
	}
	return nil
}

func (s *GCSArtifactStore) Get(ctx context.Context, ref model.ObjectRef) ([]byte, error) {
	r, err := s.client.Bucket(ref.Bucket).Object(ref.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "store", "get", ref.String(), err)
		}
		return nil, services.Wrap(services.ErrTransient, "store", "get", ref.String(), err)
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "store", "get", ref.String(), err)
	}
	return body, nil
}

// List returns object names under prefix. Cloud Storage lists in lexical order.
func (s *GCSArtifactStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := make([]string, 0)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out, services.Wrap(services.ErrTransient, "store", "list", bucket+"/"+prefix, err)
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}
