package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/errors"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("openai", Config{FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Minute, HalfOpenMaxRequests: 1})

	for i := 0; i < 4; i++ {
		ok, err := b.Allow()
		require.True(t, ok)
		require.NoError(t, err)
		b.RecordFailure(true)
	}
	assert.Equal(t, StateClosed, b.State())

	ok, err := b.Allow()
	require.True(t, ok)
	b.RecordFailure(true)

	assert.Equal(t, StateOpen, b.State())

	ok, err = b.Allow()
	assert.False(t, ok)
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errors.KindCircuitOpen, e.Kind)
	assert.Positive(t, e.RetryAfter)
}

func TestBreaker_UnclassifiedFailureDoesNotAge(t *testing.T) {
	b := New("openai", Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})

	b.RecordFailure(false)

	assert.Equal(t, StateClosed, b.State())
	ok, err := b.Allow()
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestBreaker_HalfOpenRecoversOnSuccess(t *testing.T) {
	b := New("openai", Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond, HalfOpenMaxRequests: 3})

	b.RecordFailure(true)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(2 * time.Millisecond)
	ok, err := b.Allow()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("openai", Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond, HalfOpenMaxRequests: 3})

	b.RecordFailure(true)
	time.Sleep(2 * time.Millisecond)
	ok, _ := b.Allow()
	require.True(t, ok)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure(true)
	assert.Equal(t, StateOpen, b.State())
}

func TestRegistry_CreatesPerScope(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	a := r.Get("openai")
	b := r.Get("anthropic")
	again := r.Get("openai")

	assert.NotSame(t, a, b)
	assert.Same(t, a, again)
}
