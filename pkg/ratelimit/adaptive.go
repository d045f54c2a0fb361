package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// safetyFactor leaves 10% of the advertised budget unused.
const safetyFactor = 0.9

// epochThreshold separates absolute reset timestamps from relative ones.
// Values below it are seconds until reset.
const epochThreshold = 1e9

// headerPair names a remaining/reset header convention.
type headerPair struct {
	remaining string
	reset     string
}

// Conventions are consulted in order; the first complete, parseable pair
// wins.
var headerConventions = []headerPair{
	{remaining: "X-RateLimit-Remaining", reset: "X-RateLimit-Reset"},   // GitHub
	{remaining: "X-Rate-Limit-Remaining", reset: "X-Rate-Limit-Reset"}, // Twitter
}

// Adaptive is a Bucket whose rate follows the budget an API reports in its
// rate-limit headers. It never runs faster than its initial rate.
type Adaptive struct {
	*Bucket
	initial float64
	logger  *slog.Logger
}

// NewAdaptive creates an adaptive limiter starting at initialRPS.
func NewAdaptive(initialRPS float64, opts ...Option) *Adaptive {
	b := New(initialRPS, 0, opts...)
	return &Adaptive{
		Bucket:  b,
		initial: b.Rate(),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used to report rate changes.
func (a *Adaptive) WithLogger(logger *slog.Logger) *Adaptive {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// InitialRate returns the configured starting rate.
func (a *Adaptive) InitialRate() float64 {
	return a.initial
}

// UpdateFromResponse implements ResponseObserver. Responses without a usable
// header pair leave the rate unchanged.
func (a *Adaptive) UpdateFromResponse(h http.Header) {
	remaining, untilReset, ok := parseRateHeaders(h, a.now())
	if !ok || untilReset <= 0 {
		return
	}

	safe := max(MinRate, float64(remaining)*safetyFactor/untilReset.Seconds())
	next := min(a.initial, safe)

	prev := a.Rate()
	if next == prev {
		return
	}
	a.SetRate(next)
	a.logger.Debug("adaptive rate limit adjusted",
		slog.Float64("previous_rps", prev),
		slog.Float64("rps", next),
		slog.Int64("remaining", remaining),
		slog.Duration("until_reset", untilReset))
}

// Reset restores the initial rate.
func (a *Adaptive) Reset() {
	a.SetRate(a.initial)
}

func parseRateHeaders(h http.Header, now time.Time) (remaining int64, untilReset time.Duration, ok bool) {
	for _, conv := range headerConventions {
		rem := strings.TrimSpace(h.Get(conv.remaining))
		rst := strings.TrimSpace(h.Get(conv.reset))
		if rem == "" || rst == "" {
			continue
		}

		r, err := strconv.ParseInt(rem, 10, 64)
		if err != nil || r < 0 {
			continue
		}
		reset, err := strconv.ParseFloat(rst, 64)
		if err != nil {
			continue
		}

		var until time.Duration
		if reset < epochThreshold {
			until = time.Duration(reset * float64(time.Second))
		} else {
			until = time.Duration((reset - float64(now.UnixNano())/float64(time.Second)) * float64(time.Second))
		}
		return r, until, true
	}
	return 0, 0, false
}
