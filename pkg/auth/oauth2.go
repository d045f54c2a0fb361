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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tombee/apiclient/internal/log"
	"github.com/tombee/apiclient/internal/metrics"
	"github.com/tombee/apiclient/internal/tracing"
	apierrors "github.com/tombee/apiclient/pkg/errors"
	"github.com/tombee/apiclient/pkg/storage"
)

const (
	// DefaultExpiryMargin is how long before expiry a token stops being used.
	DefaultExpiryMargin = 60 * time.Second

	// DefaultTokenLifetime is assumed when the endpoint omits expires_in.
	DefaultTokenLifetime = 3600 * time.Second

	// DefaultTokenTimeout bounds one token endpoint exchange.
	DefaultTokenTimeout = 30 * time.Second
)

// TokenState describes the cached token of an OAuth2Flow.
type TokenState int

const (
	// NoToken means no token has been acquired or loaded.
	NoToken TokenState = iota
	// Valid means the token is usable for at least the expiry margin.
	Valid
	// Expired means the token is within the expiry margin or past expiry.
	Expired
)

// String implements fmt.Stringer.
func (s TokenState) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return "no_token"
	}
}

// OAuth2Config holds client-credentials grant parameters.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string

	// Scope is a space-separated scope list, omitted from the request when
	// empty.
	Scope string

	// Tenant qualifies the storage key when one client id is used against
	// several tenants.
	Tenant string
}

// Validate checks required fields.
func (c OAuth2Config) Validate() error {
	if c.ClientID == "" {
		return &apierrors.ConfigError{Key: "client_id", Reason: "is required"}
	}
	if c.ClientSecret == "" {
		return &apierrors.ConfigError{Key: "client_secret", Reason: "is required"}
	}
	if c.TokenURL == "" {
		return &apierrors.ConfigError{Key: "token_url", Reason: "is required"}
	}
	u, err := url.Parse(c.TokenURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &apierrors.ConfigError{Key: "token_url", Reason: "must be an http or https URL", Cause: err}
	}
	return nil
}

// StorageKey returns the record key for these credentials.
func (c OAuth2Config) StorageKey() string {
	if c.Tenant != "" {
		return fmt.Sprintf("oauth2_%s_%s", c.ClientID, c.Tenant)
	}
	return "oauth2_" + c.ClientID
}

// OAuth2Option configures an OAuth2Flow.
type OAuth2Option func(*OAuth2Flow)

// WithStorage sets the token storage. Default: a private MemoryStorage.
func WithStorage(s storage.TokenStorage) OAuth2Option {
	return func(f *OAuth2Flow) { f.storage = s }
}

// WithHTTPClient sets the client used for token exchanges.
func WithHTTPClient(c *http.Client) OAuth2Option {
	return func(f *OAuth2Flow) { f.httpClient = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) OAuth2Option {
	return func(f *OAuth2Flow) { f.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OAuth2Option {
	return func(f *OAuth2Flow) { f.logger = logger }
}

// WithExpiryMargin overrides the 60s expiry margin.
func WithExpiryMargin(d time.Duration) OAuth2Option {
	return func(f *OAuth2Flow) { f.margin = d }
}

// WithOnRefresh registers a hook called after each token exchange with
// "success" or "failure".
func WithOnRefresh(fn func(result string)) OAuth2Option {
	return func(f *OAuth2Flow) { f.onRefresh = fn }
}

// WithMetrics counts token exchanges on c.
func WithMetrics(c *metrics.Collectors) OAuth2Option {
	return WithOnRefresh(c.ObserveRefresh)
}

// WithTracerProvider enables refresh spans.
func WithTracerProvider(tp trace.TracerProvider) OAuth2Option {
	return func(f *OAuth2Flow) { f.tracer = tracing.Tracer(tp) }
}

// OAuth2Flow implements the client-credentials grant with a cached token
// that is refreshed on demand. One flow should exist per credential set and
// be shared by every Session using it.
type OAuth2Flow struct {
	cfg        OAuth2Config
	key        string
	exchange   *clientcredentials.Config
	storage    storage.TokenStorage
	httpClient *http.Client
	now        func() time.Time
	margin     time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	onRefresh  func(string)

	// sem serialises check-then-refresh. A buffered channel lets waiters
	// abandon the wait when their context ends.
	sem chan struct{}

	// mu guards the snapshot below for lock-free readers.
	mu     sync.RWMutex
	token  *storage.Record
	expiry time.Time
}

// NewOAuth2Flow validates cfg and loads any persisted token.
func NewOAuth2Flow(cfg OAuth2Config, opts ...OAuth2Option) (*OAuth2Flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &OAuth2Flow{
		cfg:    cfg,
		key:    cfg.StorageKey(),
		now:    time.Now,
		margin: DefaultExpiryMargin,
		sem:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.storage == nil {
		f.storage = storage.NewMemoryStorage()
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: DefaultTokenTimeout}
	}
	f.logger = log.WithComponent(f.logger, "oauth2").With(log.StorageKeyKey, f.key)

	f.exchange = &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       strings.Fields(cfg.Scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	f.load(context.Background())
	return f, nil
}

// Headers implements Strategy, refreshing the token when it is missing or
// within the expiry margin.
func (f *OAuth2Flow) Headers(ctx context.Context) (http.Header, error) {
	if err := f.lock(ctx); err != nil {
		return nil, err
	}
	defer f.unlock()

	if f.State() != Valid {
		if err := f.refresh(ctx); err != nil {
			return nil, err
		}
	}

	tok := f.Token()
	h := make(http.Header, 1)
	h.Set("Authorization", tok.TokenType+" "+tok.AccessToken)
	return h, nil
}

// ForceRefresh exchanges credentials for a new token regardless of state.
func (f *OAuth2Flow) ForceRefresh(ctx context.Context) error {
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.unlock()
	return f.refresh(ctx)
}

// Revoke forgets the cached token and deletes the persisted record.
// Storage failures are logged, not returned.
func (f *OAuth2Flow) Revoke(ctx context.Context) error {
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.unlock()

	f.mu.Lock()
	f.token = nil
	f.expiry = time.Time{}
	f.mu.Unlock()

	if err := f.storage.Delete(ctx, f.key); err != nil {
		f.logger.Warn("failed to delete persisted token", log.Error(err))
	}
	return nil
}

// State reports the cached token state at the current time.
func (f *OAuth2Flow) State() TokenState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.token == nil {
		return NoToken
	}
	if f.now().Before(f.expiry.Add(-f.margin)) {
		return Valid
	}
	return Expired
}

// Token returns a copy of the cached token, or nil.
func (f *OAuth2Flow) Token() *storage.Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token.Clone()
}

// Expiry returns the cached token's expiry, zero when there is none.
func (f *OAuth2Flow) Expiry() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.expiry
}

// StorageKey returns the key the token is persisted under.
func (f *OAuth2Flow) StorageKey() string {
	return f.key
}

func (f *OAuth2Flow) lock(ctx context.Context) error {
	select {
	case f.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *OAuth2Flow) unlock() {
	<-f.sem
}

// refresh performs one token exchange. Callers hold the lock.
func (f *OAuth2Flow) refresh(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, f.tracer, tracing.SpanOAuth2Refresh, tracing.AttrStorageKey.String(f.key))
	defer func() {
		tracing.EndWithError(span, err)
		if f.onRefresh != nil {
			if err != nil {
				f.onRefresh(metrics.RefreshFailure)
			} else {
				f.onRefresh(metrics.RefreshSuccess)
			}
		}
	}()

	start := f.now()
	tok, err := f.exchange.Token(context.WithValue(ctx, oauth2.HTTPClient, f.httpClient))
	if err != nil {
		f.logger.Warn("token exchange failed", log.Error(err))
		return exchangeError(err)
	}
	if tok.AccessToken == "" {
		return &apierrors.AuthenticationError{Message: "token endpoint returned no access_token"}
	}

	lifetime := DefaultTokenLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}
	expiry := start.Add(lifetime)

	rec := &storage.Record{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		Scope:        f.cfg.Scope,
		ExpiresIn:    int64(lifetime / time.Second),
		CreatedAt:    storage.Unix(start),
		ExpiresAt:    storage.Unix(expiry),
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		rec.Scope = scope
	}

	f.mu.Lock()
	f.token = rec
	f.expiry = expiry
	f.mu.Unlock()

	if err := f.storage.Store(ctx, f.key, rec); err != nil {
		f.logger.Warn("failed to persist token", log.Error(err))
	}

	f.logger.Debug("token refreshed",
		"expires_in", rec.ExpiresIn,
		"token", log.SanitizeToken(rec.AccessToken))
	return nil
}

// load restores a persisted token. Unusable records leave the flow empty.
func (f *OAuth2Flow) load(ctx context.Context) {
	rec, ok := f.storage.Get(ctx, f.key)
	if !ok || rec.AccessToken == "" {
		return
	}
	expiry, ok := rec.Expiry()
	if !ok {
		f.logger.Debug("persisted token has no expiry, ignoring")
		return
	}
	if rec.TokenType == "" {
		rec.TokenType = "Bearer"
	}

	f.mu.Lock()
	f.token = rec
	f.expiry = expiry
	f.mu.Unlock()
	f.logger.Debug("loaded persisted token", "state", f.State().String())
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		authErr := &apierrors.AuthenticationError{
			Message: "token endpoint rejected the client credentials",
			Code:    re.ErrorCode,
			Cause:   err,
		}
		if re.Response != nil {
			authErr.StatusCode = re.Response.StatusCode
		}
		if re.ErrorDescription != "" {
			authErr.Message = re.ErrorDescription
		}
		return authErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &apierrors.AuthenticationError{
		Message: "token endpoint unreachable",
		Cause:   err,
	}
}
