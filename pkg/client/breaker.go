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

package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

// BreakerConfig configures the Session circuit breaker.
type BreakerConfig struct {
	// Name labels state-change logs. Default: the Session base URL.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5
	MaxFailures int

	// Timeout is how long the breaker stays open before letting a probe
	// through. Default: 30s
	Timeout time.Duration

	// MaxRequests is the number of probes allowed while half-open.
	// Default: 1
	MaxRequests int
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
	}
}

// Validate fills defaults and checks ranges.
func (c *BreakerConfig) Validate() error {
	def := DefaultBreakerConfig()
	if c.MaxFailures == 0 {
		c.MaxFailures = def.MaxFailures
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.MaxFailures < 0 {
		return fmt.Errorf("circuit breaker max_failures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("circuit breaker timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxRequests < 0 {
		return fmt.Errorf("circuit breaker max_requests must be positive, got %d", c.MaxRequests)
	}
	return nil
}

// breaker adapts gobreaker to the error taxonomy.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.MaxRequests),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
		// Client errors and caller cancellation say nothing about the
		// upstream's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var httpErr *apierrors.HTTPError
			if errors.As(err, &httpErr) {
				return !httpErr.IsRetryable()
			}
			var transportErr *apierrors.TransportError
			if errors.As(err, &transportErr) && transportErr.Type == apierrors.ErrorTypeCancelled {
				return true
			}
			return false
		},
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// execute runs fn through the breaker. Rejections become circuit_open
// transport errors.
func (b *breaker) execute(method, url string, fn func() (*Response, error)) (*Response, error) {
	var resp *Response
	_, err := b.cb.Execute(func() (interface{}, error) {
		var ferr error
		resp, ferr = fn()
		return nil, ferr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &apierrors.TransportError{
			Type:    apierrors.ErrorTypeCircuitOpen,
			Method:  method,
			URL:     url,
			Message: fmt.Sprintf("circuit breaker %q rejected the request: %v", b.cb.Name(), err),
			Cause:   err,
		}
	}
	return resp, err
}

// state returns "closed", "half-open" or "open".
func (b *breaker) state() string {
	return b.cb.State().String()
}
