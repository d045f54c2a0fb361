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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/apiclient/internal/config"
	apierrors "github.com/tombee/apiclient/pkg/errors"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitRequestFailed = 1
	ExitConfigError   = 2
	ExitAuthError     = 3
	ExitHTTPError     = 4
	ExitTransport     = 5
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for unusable configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewRequestError wraps a failed client operation, choosing the exit code
// from the error taxonomy.
func NewRequestError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitCodeFor(cause), Message: msg, Cause: cause}
}

// ExitCodeFor maps an error to an exit code.
func ExitCodeFor(err error) int {
	var (
		exitErr   *ExitError
		authErr   *apierrors.AuthenticationError
		httpErr   *apierrors.HTTPError
		transport *apierrors.TransportError
		cfgErr    *apierrors.ConfigError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.As(err, &httpErr):
		return ExitHTTPError
	case errors.As(err, &transport):
		return ExitTransport
	case errors.As(err, &cfgErr), errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrProfileNotFound):
		return ExitConfigError
	default:
		return ExitRequestFailed
	}
}

// Suggestion returns a hint for well-known failures, or "".
func Suggestion(err error) string {
	var (
		authErr   *apierrors.AuthenticationError
		transport *apierrors.TransportError
	)
	switch {
	case errors.Is(err, config.ErrProfileNotFound):
		return "List profiles in your config file or pass --profile"
	case errors.As(err, &authErr):
		return "Check the client credentials and token URL, then run 'apiclient token fetch'"
	case errors.As(err, &transport) && transport.Type == apierrors.ErrorTypeCircuitOpen:
		return "The API has been failing; wait for the circuit breaker timeout"
	case errors.As(err, &transport) && transport.Type == apierrors.ErrorTypeTimeout:
		return "Raise the profile timeout or pass --timeout"
	}
	return ""
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	printError(os.Stderr, err)
	os.Exit(ExitCodeFor(err))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	if s := Suggestion(err); s != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", s)
	}
}
