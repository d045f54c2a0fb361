package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/tombee/apiclient/pkg/errors"
	"github.com/tombee/apiclient/pkg/httpclient"
)

// Response is a fully read HTTP response.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// URL is the final request URL.
	URL string

	// Method is the request method.
	Method string

	// Elapsed covers the whole call, including rate-limit waits and
	// retries.
	Elapsed time.Duration

	// Attempts is the number of transport attempts made.
	Attempts int

	body []byte
}

// Body returns the raw response body.
func (r *Response) Body() []byte {
	return r.body
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.body)
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// OK reports whether the status code is below 400.
func (r *Response) OK() bool {
	return r.StatusCode < 400
}

// RaiseForStatus returns an *errors.HTTPError for status codes >= 400.
func (r *Response) RaiseForStatus() error {
	if r.OK() {
		return nil
	}
	return &apierrors.HTTPError{
		StatusCode: r.StatusCode,
		Method:     r.Method,
		URL:        httpclient.SanitizeURLString(r.URL),
		Header:     r.Header,
		Body:       r.body,
		RequestID:  requestID(r.Header),
		Response:   r,
	}
}

// ErrorResponse returns the Response carried by an *errors.HTTPError in
// err's chain, or nil.
func ErrorResponse(err error) *Response {
	var httpErr *apierrors.HTTPError
	if !errors.As(err, &httpErr) {
		return nil
	}
	resp, _ := httpErr.Response.(*Response)
	return resp
}

var requestIDHeaders = []string{"X-Request-Id", "X-Amzn-Requestid", "X-Github-Request-Id", "Request-Id"}

func requestID(h http.Header) string {
	for _, name := range requestIDHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}
