// Package metrics defines the Prometheus collectors for outbound API calls.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "apiclient"

// Refresh results.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
)

// Collectors groups the client metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	rateLimitWait prometheus.Histogram
}

// New creates the collectors and registers them on reg. Collectors already
// registered by another Session on the same registry are shared. A nil reg
// uses a private registry.
func New(reg prometheus.Registerer) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	// unregistered factory; registration below tolerates duplicates
	factory := promauto.With(nil)

	c := &Collectors{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Total API requests by method and final status",
			},
			[]string{"method", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration including retries and waits",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "retries_total",
				Help:      "Total retried attempts by failure reason",
			},
			[]string{"reason"},
		),
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "token_refreshes_total",
				Help:      "Total OAuth2 token endpoint exchanges by result",
			},
			[]string{"result"},
		),
		rateLimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent waiting for rate limiter admission",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}

	var err error
	if c.requests, err = register(reg, c.requests); err != nil {
		return nil, err
	}
	if c.duration, err = register(reg, c.duration); err != nil {
		return nil, err
	}
	if c.retries, err = register(reg, c.retries); err != nil {
		return nil, err
	}
	if c.refreshes, err = register(reg, c.refreshes); err != nil {
		return nil, err
	}
	if c.rateLimitWait, err = register(reg, c.rateLimitWait); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveRequest records a finished request. status is the HTTP status, or 0
// when no response was received.
func (c *Collectors) ObserveRequest(method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.requests.WithLabelValues(method, label).Inc()
	c.duration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveRetry records one retried attempt.
func (c *Collectors) ObserveRetry(reason string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(reason).Inc()
}

// ObserveRefresh records one token endpoint exchange.
func (c *Collectors) ObserveRefresh(result string) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(result).Inc()
}

// ObserveRateLimitWait records time spent blocked on a rate limiter.
func (c *Collectors) ObserveRateLimitWait(d time.Duration) {
	if c == nil {
		return
	}
	c.rateLimitWait.Observe(d.Seconds())
}
