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

// Package client provides Session, the request pipeline that composes
// authentication, rate limiting, retries and a circuit breaker around one
// HTTP transport.
//
//	flow, _ := auth.NewOAuth2Flow(auth.OAuth2Config{...})
//	sess, err := client.New("https://api.example.com",
//	    client.WithAuth(flow),
//	    client.WithRetry(retry.Default()),
//	    client.WithRateLimit(ratelimit.NewAdaptive(5)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	resp, err := sess.Get(ctx, "/users", client.WithParam("page", "2"))
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/apiclient/internal/log"
	"github.com/tombee/apiclient/internal/metrics"
	"github.com/tombee/apiclient/internal/tracing"
	"github.com/tombee/apiclient/pkg/auth"
	apierrors "github.com/tombee/apiclient/pkg/errors"
	"github.com/tombee/apiclient/pkg/httpclient"
	"github.com/tombee/apiclient/pkg/ratelimit"
	"github.com/tombee/apiclient/pkg/retry"
)

// DefaultTimeout is the per-attempt timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// ErrSessionClosed is returned by requests issued after Close.
var ErrSessionClosed = errors.New("session is closed")

// Session sends requests to one API. It is safe for concurrent use.
type Session struct {
	baseURL    string
	auth       auth.Strategy
	retry      *retry.Strategy
	limiter    ratelimit.Limiter
	breakerCfg *BreakerConfig
	breaker    *breaker
	headers    http.Header
	timeout    time.Duration
	client     *http.Client
	userAgent  string
	logger     *slog.Logger

	tracerProvider trace.TracerProvider
	tracer         trace.Tracer

	registerer     prometheus.Registerer
	metricsEnabled bool
	metrics        *metrics.Collectors

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Session. baseURL may be empty when every request uses an
// absolute URL.
func New(baseURL string, opts ...Option) (*Session, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, &apierrors.ConfigError{Key: "base_url", Reason: "must be an http or https URL", Cause: err}
		}
	}

	s := &Session{
		baseURL:   baseURL,
		headers:   http.Header{},
		timeout:   DefaultTimeout,
		userAgent: httpclient.DefaultUserAgent,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = log.WithComponent(s.logger, "session")

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = s.userAgent
	cfg.Logger = s.logger
	if s.client == nil {
		c, err := httpclient.New(cfg)
		if err != nil {
			return nil, err
		}
		s.client = c
	} else {
		s.client = httpclient.Wrap(s.client, cfg)
	}

	if s.retry != nil {
		s.retry = s.instrumentRetry(s.retry)
	}
	if s.breakerCfg != nil {
		if s.breakerCfg.Name == "" {
			s.breakerCfg.Name = baseURL
		}
		s.breaker = newBreaker(*s.breakerCfg, s.logger)
	}
	if s.tracerProvider != nil {
		s.tracer = tracing.Tracer(s.tracerProvider)
	}
	if s.metricsEnabled {
		m, err := metrics.New(s.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		s.metrics = m
	}
	return s, nil
}

// BaseURL returns the Session's base URL.
func (s *Session) BaseURL() string {
	return s.baseURL
}

// BreakerState returns the circuit breaker state, or "" when no breaker is
// configured.
func (s *Session) BreakerState() string {
	if s.breaker == nil {
		return ""
	}
	return s.breaker.state()
}

// Close releases the transport's idle connections. It is idempotent;
// requests issued afterwards fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.client.CloseIdleConnections()
		s.logger.Debug("session closed", "base_url", s.baseURL)
	})
	return nil
}

// Do sends one request through the pipeline. For status codes >= 400 both
// the Response and an *errors.HTTPError are returned.
func (s *Session) Do(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	start := time.Now()
	method = strings.ToUpper(method)

	req := buildRequest(opts)
	if req.err != nil {
		return nil, req.err
	}
	target, err := resolveURL(s.baseURL, path, req.query)
	if err != nil {
		return nil, err
	}
	logURL := httpclient.SanitizeURLString(target)

	ctx, corrID := tracing.Ensure(ctx)
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanRequest,
		tracing.AttrMethod.String(method),
		tracing.AttrURL.String(logURL),
		tracing.AttrCorrelationID.String(corrID.String()))

	resp, err := s.do(ctx, method, target, logURL, req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		resp.Elapsed = time.Since(start)
		span.SetAttributes(
			tracing.AttrStatusCode.Int(resp.StatusCode),
			tracing.AttrAttempts.Int(resp.Attempts))
	}
	tracing.EndWithError(span, err)
	s.metrics.ObserveRequest(method, status, time.Since(start))

	logger := log.WithCorrelationID(s.logger, corrID.String())
	if err != nil {
		logger.Debug("request failed", "method", method, "url", logURL, log.Error(err))
	} else {
		logger.Debug("request completed",
			"method", method,
			"url", logURL,
			"status", resp.StatusCode,
			"attempts", resp.Attempts,
			log.DurationKey, resp.Elapsed.Milliseconds())
	}
	return resp, err
}

func (s *Session) do(ctx context.Context, method, target, logURL string, req *request) (*Response, error) {
	headers := s.headers.Clone()
	for k, v := range req.headers {
		headers[k] = v
	}
	if req.contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", req.contentType)
	}

	var signer auth.RequestSigner
	if s.auth != nil {
		ah, err := s.auth.Headers(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range ah {
			headers[k] = v
		}
		signer, _ = s.auth.(auth.RequestSigner)
	}

	if s.limiter != nil {
		waitStart := time.Now()
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			return nil, apierrors.ClassifyTransport(ctx, method, logURL, 0, err)
		}
		s.metrics.ObserveRateLimitWait(time.Since(waitStart))
	}

	timeout := s.timeout
	if req.timeout > 0 {
		timeout = req.timeout
	}

	var attempts int
	resp, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*Response, error) {
		attempts++
		return s.attempt(ctx, attempts, method, target, logURL, headers, req.body, signer, timeout)
	})
	if resp != nil {
		resp.Attempts = attempts
	}
	return resp, err
}

func (s *Session) attempt(ctx context.Context, n int, method, target, logURL string, headers http.Header, body []byte, signer auth.RequestSigner, timeout time.Duration) (*Response, error) {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanAttempt, tracing.AttrAttempt.Int(n))

	send := func() (*Response, error) {
		return s.send(ctx, method, target, logURL, headers, body, signer, timeout)
	}
	var (
		resp *Response
		err  error
	)
	if s.breaker != nil {
		resp, err = s.breaker.execute(method, logURL, send)
	} else {
		resp, err = send()
	}

	if resp != nil {
		span.SetAttributes(tracing.AttrStatusCode.Int(resp.StatusCode))
	}
	tracing.EndWithError(span, err)
	return resp, err
}

// send performs one transport round trip and reads the body.
func (s *Session) send(ctx context.Context, method, target, logURL string, headers http.Header, body []byte, signer auth.RequestSigner, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header = headers.Clone()
	if signer != nil {
		if err := signer.SignRequest(attemptCtx, httpReq, body); err != nil {
			return nil, err
		}
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, apierrors.ClassifyTransport(ctx, method, logURL, timeout, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierrors.ClassifyTransport(ctx, method, logURL, timeout, err)
	}

	if obs, ok := s.limiter.(ratelimit.ResponseObserver); ok {
		obs.UpdateFromResponse(httpResp.Header)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		URL:        target,
		Method:     method,
		body:       data,
	}
	return resp, resp.RaiseForStatus()
}

// instrumentRetry returns a copy of st that also logs and counts retries.
func (s *Session) instrumentRetry(st *retry.Strategy) *retry.Strategy {
	cp := *st
	userHook := st.OnRetry
	cp.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.metrics.ObserveRetry(retry.Reason(err))
		s.logger.Info("retrying request",
			log.AttemptKey, attempt+1,
			"delay", delay,
			log.Error(err))
		if userHook != nil {
			userHook(attempt, delay, err)
		}
	}
	return &cp
}
