package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDo_RetryBoundary(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantAttempts int
	}{
		{"server error is retried until exhausted", &apierrors.HTTPError{StatusCode: 500}, 4},
		{"rate limited is retried", &apierrors.HTTPError{StatusCode: 429}, 4},
		{"not found is not retried", &apierrors.HTTPError{StatusCode: 404}, 1},
		{"auth failure is not retried", &apierrors.AuthenticationError{Message: "bad client"}, 1},
		{"connection error is retried", &apierrors.TransportError{Type: apierrors.ErrorTypeConnection}, 4},
		{"timeout is retried", apierrors.NewTimeoutError("GET", "https://x", time.Second, context.DeadlineExceeded), 4},
		{"unknown error is not retried", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &recordingSleeper{}
			s := Immediate(3)
			s.Sleep = sleeper.sleep

			attempts := 0
			err := s.Do(context.Background(), func(context.Context) error {
				attempts++
				return tt.err
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Same(t, tt.err, err, "the last error must be returned unchanged")
			assert.Len(t, sleeper.delays, tt.wantAttempts-1)
		})
	}
}

func TestDo_ScenarioTwoFailuresThenSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	s := &Strategy{
		MaxRetries:      2,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
		Sleep:           sleeper.sleep,
	}

	statuses := []int{503, 503, 200}
	calls := 0
	got, err := Do(context.Background(), s, func(context.Context) (int, error) {
		status := statuses[calls]
		calls++
		if status >= 400 {
			return status, &apierrors.HTTPError{StatusCode: status}
		}
		return status, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 200, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestBackoff_MonotonicAndBounded(t *testing.T) {
	strategies := []*Strategy{
		Default(),
		ExponentialBackoff(10, 100*time.Millisecond, 5*time.Second, false),
		LinearBackoff(10, time.Second, false),
		Immediate(10),
		{BaseDelay: time.Second, MaxDelay: time.Hour, ExponentialBase: 3},
	}

	for i, s := range strategies {
		t.Run(fmt.Sprintf("strategy_%d", i), func(t *testing.T) {
			prev := time.Duration(0)
			for attempt := 0; attempt <= 200; attempt++ {
				d := s.Backoff(attempt)
				assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
				assert.LessOrEqual(t, d, s.MaxDelay, "attempt %d", attempt)
				prev = d
			}
		})
	}
}

func TestDelay_JitterBounds(t *testing.T) {
	tests := []struct {
		name string
		rand float64
		want time.Duration
	}{
		{"lowest", 0, 750 * time.Millisecond},
		{"middle", 0.5, time.Second},
		{"highest", 0.999999, 1250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ExponentialBackoff(3, time.Second, time.Minute, true)
			s.Rand = func() float64 { return tt.rand }
			assert.InDelta(t, float64(tt.want), float64(s.Delay(0)), float64(time.Millisecond))
		})
	}

	s := ExponentialBackoff(3, time.Second, time.Minute, true)
	for i := 0; i < 1000; i++ {
		d := s.Delay(1)
		assert.GreaterOrEqual(t, d, 1500*time.Millisecond)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := ExponentialBackoff(5, time.Hour, time.Hour, false)

	attempts := 0
	err := s.Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return &apierrors.HTTPError{StatusCode: 503}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_OnRetryHook(t *testing.T) {
	var seen []int
	s := Immediate(2)
	s.OnRetry = func(attempt int, _ time.Duration, err error) {
		seen = append(seen, attempt)
		assert.Equal(t, "server", Reason(err))
	}

	_ = s.Do(context.Background(), func(context.Context) error {
		return &apierrors.HTTPError{StatusCode: 502}
	})
	assert.Equal(t, []int{0, 1}, seen)
}

type customRetryable struct{ retry bool }

func (c customRetryable) Error() string    { return "custom" }
func (c customRetryable) Retryable() bool { return c.retry }

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(customRetryable{retry: true}))
	assert.False(t, IsRetryable(customRetryable{retry: false}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &apierrors.HTTPError{StatusCode: 500})))
	assert.False(t, IsRetryable(&apierrors.TransportError{Type: apierrors.ErrorTypeCircuitOpen}))

	s := Immediate(1)
	s.Retryable = func(error) bool { return false }
	assert.False(t, s.IsRetryable(&apierrors.HTTPError{StatusCode: 500}))
}

func TestDo_NilStrategyRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), nil, func(context.Context) (string, error) {
		calls++
		return "", &apierrors.HTTPError{StatusCode: 500}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.NoError(t, Immediate(0).Validate())
	assert.Error(t, (&Strategy{MaxRetries: -1}).Validate())
	assert.Error(t, (&Strategy{BaseDelay: time.Second, MaxDelay: time.Millisecond}).Validate())
	assert.Error(t, (&Strategy{ExponentialBase: 0.5}).Validate())
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
