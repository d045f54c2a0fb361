package httpclient

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "apiclient/1.0"

// Config configures the transport handle a Session owns.
type Config struct {
	// Timeout bounds the whole exchange including the body read. Sessions
	// apply per-attempt deadlines through the request context and leave
	// this at zero.
	// Default: 0 (no client-level timeout). Must be >= 0.
	Timeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers.
	// Default: 0 (no limit). Must be >= 0.
	ResponseHeaderTimeout time.Duration

	// UserAgent is the User-Agent header value.
	// Default: DefaultUserAgent.
	UserAgent string

	// MaxIdleConnsPerHost caps pooled connections per host.
	// Default: 10. Must be > 0.
	MaxIdleConnsPerHost int

	// IdleConnTimeout closes pooled connections after this much idleness.
	// Default: 90s.
	IdleConnTimeout time.Duration

	// Logger receives one record per round trip.
	// Default: slog.Default()
	Logger *slog.Logger

	// PropagateTrace injects W3C traceparent headers from the request
	// context.
	PropagateTrace bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:           DefaultUserAgent,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		PropagateTrace:      true,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.ResponseHeaderTimeout < 0 {
		return fmt.Errorf("response_header_timeout must be >= 0, got %v", c.ResponseHeaderTimeout)
	}
	if c.MaxIdleConnsPerHost <= 0 {
		return fmt.Errorf("max_idle_conns_per_host must be > 0, got %d", c.MaxIdleConnsPerHost)
	}
	if c.IdleConnTimeout < 0 {
		return fmt.Errorf("idle_conn_timeout must be >= 0, got %v", c.IdleConnTimeout)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}
	return nil
}
