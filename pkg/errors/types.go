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
	"fmt"
	"net/http"
	"time"
)

// ErrorType classifies transport failures for routing and retry decisions.
type ErrorType string

const (
	// ErrorTypeConnection indicates network, DNS or connection reset errors.
	ErrorTypeConnection ErrorType = "connection"

	// ErrorTypeTimeout indicates the per-attempt deadline was exceeded.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeCancelled indicates the caller's context was cancelled.
	ErrorTypeCancelled ErrorType = "cancelled"

	// ErrorTypeCircuitOpen indicates the circuit breaker rejected the call.
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
)

// TransportError represents a connection-level failure: the request never
// produced an HTTP response.
type TransportError struct {
	// Type classifies the failure
	Type ErrorType

	// Method and URL identify the request (URL is sanitized)
	Method string
	URL    string

	// Message is safe to log and display
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s error: %s %s: %s", e.Type, e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string {
	return string(e.Type)
}

// IsRetryable reports whether replaying the request may succeed.
// Cancellation and open circuits are deliberate rejections.
func (e *TransportError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeCancelled, ErrorTypeCircuitOpen:
		return false
	default:
		return true
	}
}

// TimeoutError is a TransportError raised when a deadline expires.
// errors.As matches it as both *TimeoutError and *TransportError.
type TimeoutError struct {
	TransportError

	// Timeout is the deadline that was exceeded, zero if unknown
	Timeout time.Duration
}

// NewTimeoutError creates a TimeoutError for the given request.
func NewTimeoutError(method, url string, timeout time.Duration, cause error) *TimeoutError {
	msg := "request timed out"
	if timeout > 0 {
		msg = fmt.Sprintf("request timed out after %v", timeout)
	}
	return &TimeoutError{
		TransportError: TransportError{
			Type:    ErrorTypeTimeout,
			Method:  method,
			URL:     url,
			Message: msg,
			Cause:   cause,
		},
		Timeout: timeout,
	}
}

// As lets errors.As resolve a *TimeoutError to its embedded *TransportError.
func (e *TimeoutError) As(target any) bool {
	if t, ok := target.(**TransportError); ok {
		*t = &e.TransportError
		return true
	}
	return false
}

// HTTPError represents a completed exchange with a failure status (>= 400).
type HTTPError struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Method and URL identify the request (URL is sanitized)
	Method string
	URL    string

	// Header holds the response headers
	Header http.Header

	// Body holds the response body
	Body []byte

	// RequestID is the server-provided request identifier, if any
	RequestID string

	// Response is the fully read response that produced the error. Sessions
	// set it to their *client.Response; use client.ErrorResponse to get it
	// back typed.
	Response any
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("http error %d", e.StatusCode)
	if text := http.StatusText(e.StatusCode); text != "" {
		msg = fmt.Sprintf("%s %s", msg, text)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s: %s %s", msg, e.Method, e.URL)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}
	return msg
}

// ErrorType implements ErrorClassifier.
func (e *HTTPError) ErrorType() string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case e.StatusCode >= 500:
		return "server"
	default:
		return "client"
	}
}

// HTTPStatus implements StatusCarrier.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// IsRetryable returns true for 429 and 5xx responses only. Other 4xx
// responses will not succeed on replay.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AuthenticationError is returned when a credential exchange fails outright
// and no valid cached token exists. It is never retried.
type AuthenticationError struct {
	// Message describes the failure without credential material
	Message string

	// StatusCode is the token endpoint status, zero for network failures
	StatusCode int

	// Code is the OAuth2 error code (e.g. "invalid_client"), if provided
	Code string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *AuthenticationError) ErrorType() string {
	return "auth"
}

// IsRetryable always returns false.
func (e *AuthenticationError) IsRetryable() bool {
	return false
}

// HTTPStatus implements StatusCarrier.
func (e *AuthenticationError) HTTPStatus() int {
	return e.StatusCode
}

// StorageError describes a token storage failure. Storage backends log these
// and degrade; they only reach callers of explicit maintenance operations
// such as password rotation.
type StorageError struct {
	// Backend is the storage backend name ("file", "redis", ...)
	Backend string

	// Op is the failing operation ("read", "write", "decrypt", ...)
	Op string

	// Key is the record key, if applicable
	Key string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := fmt.Sprintf("%s storage %s failed", e.Backend, e.Op)
	if e.Key != "" {
		msg = fmt.Sprintf("%s for %q", msg, e.Key)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "auth.token_url")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error: %s", e.Reason)
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
