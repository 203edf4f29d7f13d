package registry

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	minLimit  = 0.1
	backOffBy = 2.0
	recoverBy = 1.5
)

// RateLimiter limits the rate of requests made to the registry
// service.
//
// Use `*RateLimiter.RoundTripper(rt)` to obtain a rate limited HTTP
// transport. The RoundTripper will react to a `HTTP 429 Too many
// requests` response by halving the limit; the request itself still
// fails, since requests are never retried.
//
// Call `*RateLimiter.Recover()` when a request has succeeded without
// incident, which will increase the rate limit modestly back towards
// the given ideal.
type RateLimiter struct {
	RPS    float64
	Burst  int
	Logger log.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func (l *RateLimiter) clip(limit float64) float64 {
	if limit < minLimit {
		return minLimit
	}
	if limit > l.RPS {
		return l.RPS
	}
	return limit
}

func (l *RateLimiter) get() *rate.Limiter {
	if l.limiter == nil {
		burst := l.Burst
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(l.RPS), burst)
	}
	return l.limiter
}

func (l *RateLimiter) adjust(by float64, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter := l.get()
	oldLimit := float64(limiter.Limit())
	newLimit := l.clip(oldLimit * by)
	if oldLimit != newLimit && l.Logger != nil {
		l.Logger.Log("info", msg, "limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
	}
	limiter.SetLimit(rate.Limit(newLimit))
}

func (l *RateLimiter) backOff() {
	l.adjust(1/backOffBy, "reducing rate limit")
}

// Recover should be called when a request has succeeded, to bump the
// limit back up again.
func (l *RateLimiter) Recover() {
	l.adjust(recoverBy, "increasing rate limit")
}

// Limit returns the current limit, in requests per second.
func (l *RateLimiter) Limit() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.get().Limit())
}

// RoundTripper wraps rt so that requests wait for the rate limit.
func (l *RateLimiter) RoundTripper(rt http.RoundTripper) http.RoundTripper {
	l.mu.Lock()
	limiter := l.get()
	l.mu.Unlock()
	return &roundTripRateLimiter{
		rl:       limiter,
		tx:       rt,
		slowDown: l.backOff,
	}
}

type roundTripRateLimiter struct {
	rl       *rate.Limiter
	tx       http.RoundTripper
	slowDown func()
}

func (t *roundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait errors out if the request cannot be processed within
	// the deadline. This is pre-emptive, instead of waiting the
	// entire duration.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	resp, err := t.tx.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.slowDown()
	}
	return resp, err
}
