package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := New(KindHTTP, "boom").WithProvider("openai", "gpt-4").WithStatus(500)
	assert.Equal(t, "[http] boom (provider=openai, model=gpt-4)", e.Error())
	assert.Equal(t, 500, e.HTTPStatusCode())
}

func TestErrorDefaultStatusByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, 400},
		{KindConfiguration, 401},
		{KindCircuitOpen, 503},
		{KindBackpressure, 503},
		{KindNotFound, 404},
		{KindCancelled, 499},
		{KindException, 500},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := New(tt.kind, "x")
			assert.Equal(t, tt.want, e.HTTPStatusCode())
		})
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("socket reset")
	e := Wrap(KindTransport, "dial failed", cause)

	var target *Error
	require.True(t, As(e, &target))
	assert.Same(t, e, target)
	assert.Equal(t, cause, e.Unwrap())
}

func TestIsRetryable(t *testing.T) {
	retryable := New(KindHTTP, "503").WithRetryable(true)
	nonRetryable := New(KindValidation, "bad request").WithRetryable(false)

	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(nonRetryable))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestRateLimitHints(t *testing.T) {
	hints := RateLimitHints()
	require.NotEmpty(t, hints)
	assert.Contains(t, hints, "rate limit")
	assert.Contains(t, hints, "throttle")
}
