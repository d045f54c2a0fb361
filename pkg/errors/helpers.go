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

package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is is a convenience wrapper around errors.Is from the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As from the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is a convenience wrapper around errors.New from the standard library.
func New(message string) error {
	return errors.New(message)
}

// IsRetryable reports whether err is worth replaying. Only errors that
// classify themselves as retryable qualify; unknown errors, context
// cancellation and authentication failures do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.IsRetryable()
	}
	return false
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// StatusCode extracts the HTTP status code from err, or zero.
func StatusCode(err error) int {
	var sc StatusCarrier
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// ClassifyTransport maps an error returned by http.Client.Do into the
// taxonomy. ctx is the caller's context and timeout the per-attempt deadline;
// they distinguish caller cancellation from deadline expiry.
func ClassifyTransport(ctx context.Context, method, rawURL string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}

	// Caller gave up: not a transport fault and never retried.
	if ctx != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &TransportError{
			Type:    ErrorTypeCancelled,
			Method:  method,
			URL:     rawURL,
			Message: "request cancelled",
			Cause:   err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return NewTimeoutError(method, rawURL, timeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return &TransportError{
			Type:    ErrorTypeCancelled,
			Method:  method,
			URL:     rawURL,
			Message: "request cancelled",
			Cause:   err,
		}
	}

	return &TransportError{
		Type:    ErrorTypeConnection,
		Method:  method,
		URL:     rawURL,
		Message: connectionMessage(err),
		Cause:   err,
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}

func connectionMessage(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("dns lookup failed for %s", dnsErr.Name)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection refused"
	case strings.Contains(msg, "connection reset"):
		return "connection reset"
	case strings.Contains(msg, "no such host"):
		return "no such host"
	case strings.Contains(msg, "eof"):
		return "connection closed unexpectedly"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("%s failed", opErr.Op)
	}
	return "connection error"
}
