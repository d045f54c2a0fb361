package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// MultiWindow enforces several fixed quotas at once, for APIs that publish
// limits such as "10 per second and 1000 per hour". Each window is a
// golang.org/x/time/rate limiter whose burst equals its quota.
type MultiWindow struct {
	windows []window
}

type window struct {
	name    string
	limiter *rate.Limiter
}

// NewMultiWindow creates a limiter from per-second, per-minute and per-hour
// quotas. A zero quota disables that window.
func NewMultiWindow(perSecond, perMinute, perHour int) (*MultiWindow, error) {
	m := &MultiWindow{}
	for _, w := range []struct {
		name  string
		limit int
		span  time.Duration
	}{
		{"second", perSecond, time.Second},
		{"minute", perMinute, time.Minute},
		{"hour", perHour, time.Hour},
	} {
		if w.limit < 0 {
			return nil, fmt.Errorf("per-%s limit must be non-negative, got %d", w.name, w.limit)
		}
		if w.limit == 0 {
			continue
		}
		every := rate.Every(w.span / time.Duration(w.limit))
		m.windows = append(m.windows, window{name: w.name, limiter: rate.NewLimiter(every, w.limit)})
	}
	if len(m.windows) == 0 {
		return nil, fmt.Errorf("at least one window limit is required")
	}
	return m, nil
}

// Acquire implements Limiter. Fractional costs round up.
func (m *MultiWindow) Acquire(ctx context.Context, cost float64) error {
	n := int(math.Ceil(cost))
	if n < 1 {
		n = 1
	}
	for _, w := range m.windows {
		if err := w.limiter.WaitN(ctx, n); err != nil {
			return fmt.Errorf("per-%s window: %w", w.name, err)
		}
	}
	return nil
}

// Windows returns the names of the enabled windows.
func (m *MultiWindow) Windows() []string {
	names := make([]string, 0, len(m.windows))
	for _, w := range m.windows {
		names = append(names, w.name)
	}
	return names
}
