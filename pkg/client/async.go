package client

import (
	"context"
	"net/http"
)

// Future is the pending result of an asynchronous request.
type Future struct {
	done chan struct{}
	resp *Response
	err  error
}

// Done is closed when the request has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the request finishes or ctx is done. Abandoning the wait
// does not cancel the request; cancel the context passed to Go for that.
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the request finishes.
func (f *Future) Result() (*Response, error) {
	<-f.done
	return f.resp, f.err
}

// Go runs Do on a new goroutine.
func (s *Session) Go(ctx context.Context, method, path string, opts ...RequestOption) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.resp, f.err = s.Do(ctx, method, path, opts...)
	}()
	return f
}

// GetAsync sends a GET request asynchronously.
func (s *Session) GetAsync(ctx context.Context, path string, opts ...RequestOption) *Future {
	return s.Go(ctx, http.MethodGet, path, opts...)
}

// PostAsync sends a POST request asynchronously.
func (s *Session) PostAsync(ctx context.Context, path string, opts ...RequestOption) *Future {
	return s.Go(ctx, http.MethodPost, path, opts...)
}

// PutAsync sends a PUT request asynchronously.
func (s *Session) PutAsync(ctx context.Context, path string, opts ...RequestOption) *Future {
	return s.Go(ctx, http.MethodPut, path, opts...)
}

// PatchAsync sends a PATCH request asynchronously.
func (s *Session) PatchAsync(ctx context.Context, path string, opts ...RequestOption) *Future {
	return s.Go(ctx, http.MethodPatch, path, opts...)
}

// DeleteAsync sends a DELETE request asynchronously.
func (s *Session) DeleteAsync(ctx context.Context, path string, opts ...RequestOption) *Future {
	return s.Go(ctx, http.MethodDelete, path, opts...)
}

// HeadAsync sends a HEAD request asynchronously.
func (s *Session) HeadAsync(ctx context.Context, path string, opts ...RequestOption) *Future {
	return s.Go(ctx, http.MethodHead, path, opts...)
}

// OptionsAsync sends an OPTIONS request asynchronously.
func (s *Session) OptionsAsync(ctx context.Context, path string, opts ...RequestOption) *Future {
	return s.Go(ctx, http.MethodOptions, path, opts...)
}

// WaitAll waits for every future and returns their results in order.
func WaitAll(ctx context.Context, futures ...*Future) ([]*Response, []error) {
	resps := make([]*Response, len(futures))
	errs := make([]error, len(futures))
	for i, f := range futures {
		resps[i], errs[i] = f.Wait(ctx)
	}
	return resps, errs
}
