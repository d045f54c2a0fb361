// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

// SigV4Config configures AWS Signature Version 4 signing.
type SigV4Config struct {
	// Service is the signing name (e.g. "execute-api", "s3"). Required.
	Service string

	// Region is the signing region (e.g. "us-east-1"). Required.
	Region string

	// Static credentials. When AccessKeyID is empty the default credential
	// chain is used (env, shared config, IMDS...).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Profile selects a shared config profile for the default chain.
	Profile string

	// STSEndpoint overrides the endpoint used by Verify.
	STSEndpoint string
}

// SigV4 signs every attempt with AWS SigV4. It implements both Strategy
// (contributing no headers) and RequestSigner.
type SigV4 struct {
	cfg    SigV4Config
	aws    aws.Config
	signer *v4.Signer
	now    func() time.Time
}

// NewSigV4 resolves credentials for cfg.
func NewSigV4(ctx context.Context, cfg SigV4Config) (*SigV4, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("sigv4 service is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("sigv4 region is required")
	}

	var awsCfg aws.Config
	if cfg.AccessKeyID != "" {
		if cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("sigv4 secret access key is required with an access key id")
		}
		awsCfg = aws.Config{
			Region: cfg.Region,
			Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		}
	} else {
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.Profile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
		}
		loaded, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, &apierrors.AuthenticationError{
				Message: "failed to load AWS configuration",
				Cause:   err,
			}
		}
		awsCfg = loaded
	}

	return &SigV4{
		cfg:    cfg,
		aws:    awsCfg,
		signer: v4.NewSigner(),
		now:    time.Now,
	}, nil
}

// Headers implements Strategy. SigV4 authenticates in SignRequest.
func (s *SigV4) Headers(context.Context) (http.Header, error) {
	return http.Header{}, nil
}

// SignRequest implements RequestSigner.
func (s *SigV4) SignRequest(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.aws.Credentials.Retrieve(ctx)
	if err != nil {
		return &apierrors.AuthenticationError{
			Message: "unable to resolve AWS credentials",
			Cause:   err,
		}
	}

	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash, s.cfg.Service, s.cfg.Region, s.now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// Verify checks the credentials with STS GetCallerIdentity and returns the
// caller ARN.
func (s *SigV4) Verify(ctx context.Context) (string, error) {
	client := sts.NewFromConfig(s.aws, func(o *sts.Options) {
		if s.cfg.STSEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.STSEndpoint)
		}
		o.RetryMaxAttempts = 1
	})

	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := client.GetCallerIdentity(verifyCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", &apierrors.AuthenticationError{
			Message: "AWS credential validation failed",
			Cause:   err,
		}
	}
	return aws.ToString(out.Arn), nil
}
