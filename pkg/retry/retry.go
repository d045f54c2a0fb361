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

// Package retry replays failed operations with exponential backoff.
//
// A Strategy carries configuration only. The attempt counter lives inside a
// single Do call, so one Strategy can be shared by any number of goroutines.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

const (
	// jitterFraction bounds the random perturbation of each delay (±25%).
	jitterFraction = 0.25
)

// Operation is one attempt of a retryable unit of work.
type Operation func(ctx context.Context) error

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Strategy configures retry behaviour.
type Strategy struct {
	// MaxRetries is the number of replays after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first replay.
	BaseDelay time.Duration

	// MaxDelay caps every computed delay.
	MaxDelay time.Duration

	// ExponentialBase multiplies the delay on each attempt. 1 gives a
	// constant delay.
	ExponentialBase float64

	// Jitter perturbs each delay by a uniform ±25%.
	Jitter bool

	// OnRetry, if set, is called before each backoff sleep with the
	// zero-based attempt that failed.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Retryable overrides the default classification.
	Retryable func(err error) bool

	// Sleep overrides the context-aware timer. Used by tests.
	Sleep SleepFunc

	// Rand overrides the jitter source; it must return values in [0, 1).
	Rand func() float64
}

// Default returns 3 retries starting at 1s, doubling up to 60s, with jitter.
func Default() *Strategy {
	return ExponentialBackoff(3, time.Second, 60*time.Second, true)
}

// ExponentialBackoff doubles the delay on each attempt.
func ExponentialBackoff(maxRetries int, baseDelay, maxDelay time.Duration, jitter bool) *Strategy {
	return &Strategy{
		MaxRetries:      maxRetries,
		BaseDelay:       baseDelay,
		MaxDelay:        maxDelay,
		ExponentialBase: 2,
		Jitter:          jitter,
	}
}

// LinearBackoff waits the same delay before every replay.
func LinearBackoff(maxRetries int, delay time.Duration, jitter bool) *Strategy {
	return &Strategy{
		MaxRetries:      maxRetries,
		BaseDelay:       delay,
		MaxDelay:        delay,
		ExponentialBase: 1,
		Jitter:          jitter,
	}
}

// Immediate replays without waiting.
func Immediate(maxRetries int) *Strategy {
	return &Strategy{
		MaxRetries:      maxRetries,
		ExponentialBase: 1,
	}
}

// Validate checks if the strategy is usable.
func (s *Strategy) Validate() error {
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", s.MaxRetries)
	}
	if s.BaseDelay < 0 {
		return fmt.Errorf("base_delay must be non-negative, got %v", s.BaseDelay)
	}
	if s.MaxDelay < s.BaseDelay {
		return fmt.Errorf("max_delay (%v) must be >= base_delay (%v)", s.MaxDelay, s.BaseDelay)
	}
	if s.ExponentialBase != 0 && s.ExponentialBase < 1 {
		return fmt.Errorf("exponential_base must be >= 1, got %f", s.ExponentialBase)
	}
	return nil
}

// Backoff returns the pre-jitter delay after the given zero-based attempt:
// min(MaxDelay, BaseDelay * ExponentialBase^attempt).
func (s *Strategy) Backoff(attempt int) time.Duration {
	base := s.ExponentialBase
	if base == 0 {
		base = 2
	}
	delay := float64(s.BaseDelay) * math.Pow(base, float64(attempt))
	if delay > float64(s.MaxDelay) || math.IsInf(delay, 1) || math.IsNaN(delay) {
		delay = float64(s.MaxDelay)
	}
	return time.Duration(delay)
}

// Delay returns the backoff for attempt with jitter applied when enabled.
func (s *Strategy) Delay(attempt int) time.Duration {
	delay := float64(s.Backoff(attempt))
	if s.Jitter {
		r := s.Rand
		if r == nil {
			r = rand.Float64
		}
		spread := delay * jitterFraction
		delay += (r()*2 - 1) * spread
	}
	return time.Duration(max(0, delay))
}

// IsRetryable reports whether err should be replayed by this strategy.
func (s *Strategy) IsRetryable(err error) bool {
	if s.Retryable != nil {
		return s.Retryable(err)
	}
	return IsRetryable(err)
}

// Do runs op until it succeeds, fails with a non-retryable error or has been
// attempted MaxRetries+1 times. The last error is returned unchanged.
func (s *Strategy) Do(ctx context.Context, op Operation) error {
	_, err := Do(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is the value-returning form of Strategy.Do. A nil strategy runs op once.
func Do[T any](ctx context.Context, s *Strategy, op func(ctx context.Context) (T, error)) (T, error) {
	if s == nil {
		return op(ctx)
	}

	sleep := s.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var (
		result T
		err    error
	)
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == s.MaxRetries || !s.IsRetryable(err) {
			return result, err
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		delay := s.Delay(attempt)
		if s.OnRetry != nil {
			s.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return result, serr
		}
	}
	return result, err
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable is the default classification: transport failures, timeouts,
// HTTP 429 and 5xx, and any error exposing Retryable() true.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsRetryable(err) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Reason returns a short label for metrics describing why err was retried.
func Reason(err error) string {
	var classifier apierrors.ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	return "other"
}
