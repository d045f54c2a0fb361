package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/apiclient/internal/log"
	"github.com/tombee/apiclient/internal/tracing"
)

// loggingTransport wraps an http.RoundTripper to add:
// - Request logging with sanitized URLs
// - User-Agent header injection
// - Correlation ID and traceparent propagation
// - Duration tracking
type loggingTransport struct {
	base           http.RoundTripper
	userAgent      string
	logger         *slog.Logger
	propagateTrace bool
}

func newLoggingTransport(base http.RoundTripper, userAgent string, logger *slog.Logger, propagateTrace bool) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{
		base:           base,
		userAgent:      userAgent,
		logger:         log.OrDefault(logger),
		propagateTrace: propagateTrace,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	tracing.InjectIntoRequest(req.Context(), req)
	if t.propagateTrace {
		tracing.InjectHTTPHeaders(req.Context(), req)
	}

	ctx := req.Context()
	logURL := SanitizeURL(req.URL)
	log.Trace(t.logger, "http request headers",
		slog.String("method", req.Method),
		slog.String("url", logURL),
		slog.Any("headers", SanitizeHeaders(req.Header)))

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	attrs := []any{
		"method", req.Method,
		"url", logURL,
		log.DurationKey, duration,
	}
	if id := tracing.FromContextOrEmpty(ctx); id.IsValid() {
		attrs = append(attrs, log.CorrelationIDKey, id.String())
	}

	if err != nil {
		t.logger.WarnContext(ctx, "http request failed", append(attrs, log.Error(err))...)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.Log(ctx, level, "http request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}

// CloseIdleConnections forwards to the wrapped transport so that
// http.Client.CloseIdleConnections reaches the pool.
func (t *loggingTransport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if c, ok := t.base.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}
