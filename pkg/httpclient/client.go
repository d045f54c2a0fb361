package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/tombee/apiclient/internal/log"
)

// New creates the HTTP client a Session sends through. The client has:
//   - Request logging with sanitized URLs
//   - User-Agent header injection
//   - Correlation ID and trace context propagation
//   - TLS 1.2 minimum
//   - Connection pooling
//
// Returns an error if the configuration is invalid.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	logger := log.WithComponent(cfg.Logger, "http")
	return &http.Client{
		Transport: newLoggingTransport(baseTransport, cfg.UserAgent, logger, cfg.PropagateTrace),
		Timeout:   cfg.Timeout,
	}, nil
}

// Wrap layers the logging transport over an existing client's transport,
// returning a shallow copy. Used when callers supply their own client.
func Wrap(c *http.Client, cfg Config) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	wrapped := *c
	wrapped.Transport = newLoggingTransport(c.Transport, cfg.UserAgent,
		log.WithComponent(cfg.Logger, "http"), cfg.PropagateTrace)
	return &wrapped
}
