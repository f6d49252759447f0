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
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// ArtifactURLSigner issues V4 signed download links for artifacts. Signing is
// delegated to the IAM Credentials API so no service account key is needed on
// disk.
type ArtifactURLSigner struct {
	iam   *credentials.IamCredentialsClient
	email string
}

// NewArtifactURLSigner creates a signer acting as the service account email.
func NewArtifactURLSigner(iam *credentials.IamCredentialsClient, email string) *ArtifactURLSigner {
	return &ArtifactURLSigner{iam: iam, email: email}
}

// SignedURL returns a GET link to ref valid for expires.
func (s *ArtifactURLSigner) SignedURL(ctx context.Context, ref model.ObjectRef, expires time.Duration) (string, error) {
	if s.email == "" {
		return "", services.Wrap(services.ErrConfiguration, "signer", "sign", "signer_service_account_email is not set", nil)
	}
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(expires),
		GoogleAccessID: s.email,
		SignBytes: func(b []byte) ([]byte, error) {
			resp, err := s.iam.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.email),
				Payload: b,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		},
	}
	url, err := storage.SignedURL(ref.Bucket, ref.Key, opts)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "signer", "sign", ref.String(), err)
	}
	return url, nil
}
