package soletic

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Limiter blocks until a request may be sent.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter hands out rate tokens per second up to burst. Waiters
// reserve a token up front, so concurrent callers queue without holding the lock.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

// NewTokenBucketLimiter returns a full bucket. Non-positive values are raised to 1.
func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:     rate,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     time.Now(),
	}
}

// Wait takes a token, sleeping until it is due. A cancelled wait returns its reservation.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.refill(time.Now())
	l.tokens--
	deficit := -l.tokens
	l.mu.Unlock()

	if deficit <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(deficit / l.rate * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.tokens = min(l.capacity, l.tokens+1)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *TokenBucketLimiter) refill(now time.Time) {
	elapsed := now.Sub(l.last)
	if elapsed <= 0 {
		return
	}
	l.last = now
	l.tokens = min(l.capacity, l.tokens+l.rate*elapsed.Seconds())
}

// RateLimitedTransport waits on Limiter before every round trip.
type RateLimitedTransport struct {
	Limiter Limiter
	Base    http.RoundTripper
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Helius free plans allow 10 requests per second per key; stay just below.
const defaultHeliusRate = 9

var (
	heliusHosts = map[string]bool{
		"mainnet.helius-rpc.com": true,
		"devnet.helius-rpc.com":  true,
	}

	hostLimitersMu sync.Mutex
	hostLimiters   = make(map[string]Limiter)
)

// limiterForEndpoint returns the limiter shared by every client of the
// endpoint's host, or nil when the host is not rate limited.
// SOLETIC_RPC_RATE overrides the rate; 0 disables limiting.
func limiterForEndpoint(endpoint string) Limiter {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil
	}
	host := parsed.Hostname()
	if !heliusHosts[host] {
		return nil
	}
	rate := loadIntEnv(rpcRateEnv, defaultHeliusRate)
	if rate == 0 {
		return nil
	}

	hostLimitersMu.Lock()
	defer hostLimitersMu.Unlock()
	if limiter, ok := hostLimiters[host]; ok {
		return limiter
	}
	limiter := NewTokenBucketLimiter(float64(rate), rate)
	hostLimiters[host] = limiter
	return limiter
}
