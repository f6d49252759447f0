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

package cloud

import (
	"context"
	"fmt"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// SecretEnvPrefix marks a reference that is read from the environment.
const SecretEnvPrefix = "env:"

// SecretResolver turns a secret reference into its value. The value is held
// in memory only.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretManagerResolver resolves "projects/<p>/secrets/<s>/versions/<v>"
// references through Secret Manager and "env:<VAR>" references from the
// environment.
type SecretManagerResolver struct {
	client *secretmanager.Client
}

// NewSecretManagerResolver creates a resolver. client may be nil when only
// environment references are used.
func NewSecretManagerResolver(client *secretmanager.Client) *SecretManagerResolver {
	return &SecretManagerResolver{client: client}
}

func (r *SecretManagerResolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if name, ok := strings.CutPrefix(ref, SecretEnvPrefix); ok {
		value, found := os.LookupEnv(name)
		if !found || value == "" {
			return "", services.Wrap(services.ErrConfiguration, "secrets", "resolve", fmt.Sprintf("environment variable %s is not set", name), nil)
		}
		return value, nil
	}
	if !strings.HasPrefix(ref, "projects/") {
		return "", services.Wrap(services.ErrConfiguration, "secrets", "resolve", "unsupported secret reference", nil)
	}
	if r.client == nil {
		return "", services.Wrap(services.ErrConfiguration, "secrets", "resolve", "secret manager client is not configured", nil)
	}
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: ref})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "secrets", "access", "", err)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

// NeedsSecretManager reports whether ref must be resolved through Secret Manager.
func NeedsSecretManager(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "projects/")
}
