package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/errors"
)

func TestPolicy_BackoffDoublesAndCaps(t *testing.T) {
	p := &Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0}

	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(5)) // capped
}

func TestDefaultPolicy_MatchesTeacherBaseline(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 3, p.MaxRetries)
}

func TestPolicy_JitterWithinBounds(t *testing.T) {
	p := &Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.2}

	for i := 0; i < 50; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestPolicy_Do_RetriesUpToMax(t *testing.T) {
	p := &Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		return errors.New(errors.KindHTTP, "503").WithRetryable(true)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestPolicy_Do_StopsOnNonRetryable(t *testing.T) {
	p := &Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		return errors.New(errors.KindValidation, "bad request").WithRetryable(false)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_NeverRetriesCircuitOpen(t *testing.T) {
	p := &Policy{MaxRetries: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		return errors.New(errors.KindCircuitOpen, "open").WithRetryable(true)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_SucceedsEventually(t *testing.T) {
	p := &Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if calls < 2 {
			return errors.New(errors.KindTransport, "dial failed").WithRetryable(true)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
