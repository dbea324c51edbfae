package provider

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy governs per-provider retries and cross-provider fallback.
// Immutable once built; share one policy across all gateway calls for an
// agent.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt, per
	// provider. Each provider in a fallback chain gets this budget fresh.
	MaxRetries int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay per attempt. Zero means 2.
	BackoffFactor float64
	// Jitter randomizes delays by ±25% to avoid thundering herds.
	Jitter bool
	// FallbackEnabled allows trying other providers after the primary
	// exhausts its retries.
	FallbackEnabled bool
	// Fallback is the ordered list of provider names to try after the
	// primary. The primary is skipped if it appears here.
	Fallback []string
}

// DefaultRetryPolicy mirrors the defaults most deployments run with.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	BaseDelay:       time.Second,
	MaxDelay:        30 * time.Second,
	BackoffFactor:   2.0,
	Jitter:          true,
	FallbackEnabled: true,
}

// Delay returns the wait before the given retry (1-based: Delay(1) precedes
// the first retry). Exponential in the attempt number, capped at MaxDelay,
// optionally jittered.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(retry-1)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter && delay > 0 {
		// ±25% around the computed delay.
		jitter := 0.75 + rand.Float64()*0.5
		delay = time.Duration(float64(delay) * jitter)
	}
	return delay
}
