// Package retry implements the retry policy (§4.12): exponential
// backoff with jitter, disabled outright for streaming requests.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/exrt/exllm/pkg/errors"
)

// Policy holds the backoff curve's tunables. Resolves §9 Open Question
// (b): the curve is exponential doubling, not multiplicative, capped at
// MaxDelay, with jitter applied as a multiplicative factor in
// [1-Jitter, 1+Jitter].
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64 // 0..1

	mu  sync.Mutex
	rng *rand.Rand
}

// DefaultPolicy matches the teacher's defaults (options.go's
// RetryBackoff): doubling backoff starting at 1s, capped at 30s with
// 20% jitter, up to 3 retries.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     0.2,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Backoff returns the delay to wait before the given attempt (1-indexed:
// attempt 1 is the first retry, after the initial call failed).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}

	backoff := p.BaseDelay
	for i := 1; i < attempt; i++ {
		next := backoff * 2
		if next < backoff { // overflow guard
			break
		}
		backoff = next
	}
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}

	if p.Jitter > 0 {
		jitter := p.Jitter
		if jitter > 1 {
			jitter = 1
		}
		minFactor := 1 - jitter
		maxFactor := 1 + jitter
		factor := minFactor + p.randFloat64()*(maxFactor-minFactor)
		backoff = time.Duration(float64(backoff) * factor)
		if p.MaxDelay > 0 && backoff > p.MaxDelay {
			backoff = p.MaxDelay
		}
	}
	return backoff
}

func (p *Policy) randFloat64() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p.rng.Float64()
}

// Do runs fn, retrying on errors classified retryable by
// pkg/errors.IsRetryable, up to MaxRetries additional attempts. It never
// retries a KindCircuitOpen error (non-retriable by design, §7) and is
// never invoked at all for streaming requests — callers gate that
// before reaching here (§4.12).
func (p *Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Backoff(attempt)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			} else if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		var e *errors.Error
		if errors.As(err, &e) && e.Kind == errors.KindCircuitOpen {
			return err
		}
		if !errors.IsRetryable(err) {
			return err
		}
	}
	return lastErr
}
