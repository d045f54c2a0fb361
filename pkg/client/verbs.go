package client

import (
	"context"
	"net/http"
)

// Get sends a GET request.
func (s *Session) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodGet, path, opts...)
}

// Post sends a POST request.
func (s *Session) Post(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodPost, path, opts...)
}

// Put sends a PUT request.
func (s *Session) Put(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodPut, path, opts...)
}

// Patch sends a PATCH request.
func (s *Session) Patch(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodPatch, path, opts...)
}

// Delete sends a DELETE request.
func (s *Session) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodDelete, path, opts...)
}

// Head sends a HEAD request.
func (s *Session) Head(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodHead, path, opts...)
}

// Options sends an OPTIONS request.
func (s *Session) Options(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodOptions, path, opts...)
}
