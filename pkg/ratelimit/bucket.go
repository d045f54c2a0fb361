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

// Package ratelimit provides client-side admission control for outbound
// requests.
//
// Bucket is a token bucket refilled lazily from the clock at acquisition
// time; it starts no goroutines or timers. Adaptive follows the budget an API
// advertises in its response headers. MultiWindow enforces per-second,
// per-minute and per-hour quotas at once.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// MinRate is the slowest rate a Bucket runs at, in requests per second.
const MinRate = 0.1

// Limiter gates outbound requests.
type Limiter interface {
	// Acquire blocks until cost tokens are admitted or ctx is done.
	Acquire(ctx context.Context, cost float64) error
}

// ResponseObserver is implemented by limiters that adjust themselves from
// response headers.
type ResponseObserver interface {
	UpdateFromResponse(h http.Header)
}

// Option customises a Bucket.
type Option func(*Bucket)

// WithClock replaces the wall clock and the context-aware sleep. Used by
// tests to observe waits without sleeping.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
		if sleep != nil {
			b.sleep = sleep
		}
	}
}

// WithWaitObserver registers a callback invoked with every non-zero wait.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(b *Bucket) { b.onWait = fn }
}

// Bucket is a token bucket limiter.
//
// tokens may drop below zero while callers are waiting: the deficit is
// reserved under the lock before the wait so that concurrent callers queue
// behind it. The wait itself happens outside the lock.
type Bucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	onWait func(time.Duration)
}

// New creates a bucket admitting rate requests per second with the given
// burst. A burst below 1 defaults to int(rate), and at least 1. The bucket
// starts full.
func New(rate float64, burst int, opts ...Option) *Bucket {
	if rate < MinRate {
		rate = MinRate
	}
	if burst < 1 {
		burst = max(1, int(rate))
	}

	b := &Bucket{
		rate:  rate,
		burst: float64(burst),
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.tokens = b.burst
	b.last = b.now()
	return b
}

// Acquire implements Limiter. A cost of zero or less is treated as 1.
func (b *Bucket) Acquire(ctx context.Context, cost float64) error {
	if cost <= 0 {
		cost = 1
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.refill()
	if b.tokens >= cost {
		b.tokens -= cost
		b.mu.Unlock()
		return nil
	}
	wait := time.Duration((cost - b.tokens) / b.rate * float64(time.Second))
	b.tokens -= cost
	b.mu.Unlock()

	if b.onWait != nil {
		b.onWait(wait)
	}
	if err := b.sleep(ctx, wait); err != nil {
		// not admitted: give the reservation back
		b.mu.Lock()
		b.tokens = min(b.burst, b.tokens+cost)
		b.mu.Unlock()
		return err
	}
	return nil
}

// refill adds tokens for the elapsed time. Must be called with lock held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed*b.rate)
	}
	b.last = now
}

// Rate returns the current rate in requests per second.
func (b *Bucket) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

// Burst returns the bucket capacity.
func (b *Bucket) Burst() int {
	return int(b.burst)
}

// Tokens returns the currently available tokens, never negative.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return max(0, b.tokens)
}

// SetRate changes the refill rate. Time elapsed so far is credited at the
// old rate.
func (b *Bucket) SetRate(rate float64) {
	if rate < MinRate {
		rate = MinRate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	b.rate = rate
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
