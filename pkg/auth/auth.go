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

// Package auth provides the authentication strategies a Session applies to
// outgoing requests: static credentials, locally minted JWTs, AWS SigV4
// signing and the OAuth2 client-credentials flow.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
)

// Strategy produces the headers that authenticate one request.
type Strategy interface {
	Headers(ctx context.Context) (http.Header, error)
}

// RequestSigner is implemented by strategies that must see the final request
// (method, URL, body) to authenticate it. Signers are invoked once per
// attempt, after all other headers are set.
type RequestSigner interface {
	SignRequest(ctx context.Context, req *http.Request, body []byte) error
}

// DefaultAPIKeyHeader is the header APIKey uses when none is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// Bearer authenticates with a fixed bearer token.
type Bearer struct {
	Token string
}

// Headers implements Strategy.
func (b *Bearer) Headers(context.Context) (http.Header, error) {
	if b.Token == "" {
		return nil, errors.New("bearer token is empty")
	}
	h := make(http.Header, 1)
	h.Set("Authorization", "Bearer "+b.Token)
	return h, nil
}

// Basic authenticates with HTTP basic credentials.
type Basic struct {
	Username string
	Password string
}

// Headers implements Strategy.
func (b *Basic) Headers(context.Context) (http.Header, error) {
	if b.Username == "" {
		return nil, errors.New("basic auth username is empty")
	}
	creds := base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.Password))
	h := make(http.Header, 1)
	h.Set("Authorization", "Basic "+creds)
	return h, nil
}

// APIKey sends a static key in a header, optionally prefixed
// (e.g. Prefix "Token" yields "Token <key>").
type APIKey struct {
	Key    string
	Header string
	Prefix string
}

// Headers implements Strategy.
func (a *APIKey) Headers(context.Context) (http.Header, error) {
	if a.Key == "" {
		return nil, errors.New("api key is empty")
	}
	name := a.Header
	if name == "" {
		name = DefaultAPIKeyHeader
	}
	value := a.Key
	if a.Prefix != "" {
		value = a.Prefix + " " + a.Key
	}
	h := make(http.Header, 1)
	h.Set(name, value)
	return h, nil
}

// Apply merges the strategy's headers into req, replacing existing values,
// then signs req when the strategy is a RequestSigner.
func Apply(ctx context.Context, s Strategy, req *http.Request, body []byte) error {
	if s == nil {
		return nil
	}
	h, err := s.Headers(ctx)
	if err != nil {
		return err
	}
	for k, v := range h {
		req.Header[k] = append([]string(nil), v...)
	}
	if signer, ok := s.(RequestSigner); ok {
		return signer.SignRequest(ctx, req, body)
	}
	return nil
}
