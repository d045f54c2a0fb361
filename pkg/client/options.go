package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/apiclient/pkg/auth"
	"github.com/tombee/apiclient/pkg/ratelimit"
	"github.com/tombee/apiclient/pkg/retry"
)

// Option configures a Session.
type Option func(*Session) error

// WithAuth sets the authentication strategy applied to every request.
func WithAuth(s auth.Strategy) Option {
	return func(sess *Session) error {
		sess.auth = s
		return nil
	}
}

// WithRetry enables retries with the given strategy.
func WithRetry(s *retry.Strategy) Option {
	return func(sess *Session) error {
		if s != nil {
			if err := s.Validate(); err != nil {
				return err
			}
		}
		sess.retry = s
		return nil
	}
}

// WithRateLimit gates every request on l. Limiters that implement
// ratelimit.ResponseObserver also see every response's headers.
func WithRateLimit(l ratelimit.Limiter) Option {
	return func(sess *Session) error {
		sess.limiter = l
		return nil
	}
}

// WithCircuitBreaker wraps every attempt in a circuit breaker.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(sess *Session) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		sess.breakerCfg = &cfg
		return nil
	}
}

// WithHeaders sets default headers sent on every request.
func WithHeaders(h map[string]string) Option {
	return func(sess *Session) error {
		for k, v := range h {
			sess.headers.Set(k, v)
		}
		return nil
	}
}

// WithTimeout sets the default per-attempt timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(sess *Session) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be > 0, got %v", d)
		}
		sess.timeout = d
		return nil
	}
}

// WithHTTPClient sends through c instead of a Session-built client. The
// Session still closes c's idle connections on Close.
func WithHTTPClient(c *http.Client) Option {
	return func(sess *Session) error {
		sess.client = c
		return nil
	}
}

// WithLogger sets the logger. Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(sess *Session) error {
		sess.logger = logger
		return nil
	}
}

// WithTracerProvider enables request and attempt spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(sess *Session) error {
		sess.tracerProvider = tp
		return nil
	}
}

// WithMetrics registers request metrics on reg. Sessions sharing a
// registerer share collectors.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(sess *Session) error {
		sess.registerer = reg
		sess.metricsEnabled = true
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(sess *Session) error {
		sess.userAgent = ua
		return nil
	}
}

// request holds per-call settings.
type request struct {
	query       url.Values
	headers     http.Header
	body        []byte
	contentType string
	timeout     time.Duration
	err         error
}

// RequestOption configures a single request.
type RequestOption func(*request)

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(r *request) {
		for k, vs := range q {
			for _, v := range vs {
				r.query.Add(k, v)
			}
		}
	}
}

// WithParam adds one query parameter.
func WithParam(key, value string) RequestOption {
	return func(r *request) { r.query.Add(key, value) }
}

// WithHeader sets a header for this request, overriding Session defaults.
func WithHeader(key, value string) RequestOption {
	return func(r *request) { r.headers.Set(key, value) }
}

// WithJSON encodes v as the request body.
func WithJSON(v any) RequestOption {
	return func(r *request) {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			r.err = fmt.Errorf("failed to encode JSON body: %w", err)
			return
		}
		r.body = bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
		r.contentType = "application/json"
	}
}

// WithForm sends form as an urlencoded body.
func WithForm(form url.Values) RequestOption {
	return func(r *request) {
		r.body = []byte(form.Encode())
		r.contentType = "application/x-www-form-urlencoded"
	}
}

// WithBody sends raw bytes. An empty contentType leaves the header unset.
func WithBody(body []byte, contentType string) RequestOption {
	return func(r *request) {
		r.body = body
		r.contentType = contentType
	}
}

// WithBodyReader reads rd fully and sends it as the body. The body is
// buffered so that every attempt can replay it.
func WithBodyReader(rd io.Reader, contentType string) RequestOption {
	return func(r *request) {
		data, err := io.ReadAll(rd)
		if err != nil {
			r.err = fmt.Errorf("failed to read request body: %w", err)
			return
		}
		r.body = data
		r.contentType = contentType
	}
}

// WithRequestTimeout overrides the per-attempt timeout for this request.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(r *request) { r.timeout = d }
}

func buildRequest(opts []RequestOption) *request {
	r := &request{query: url.Values{}, headers: http.Header{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolveURL joins path onto base with exactly one slash. Absolute http(s)
// URLs are used verbatim.
func resolveURL(base, path string, query url.Values) (string, error) {
	target := path
	lower := strings.ToLower(path)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		switch {
		case base == "":
			target = path
		case path == "":
			target = base
		default:
			target = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("request URL %q is not absolute; set a base URL", target)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
