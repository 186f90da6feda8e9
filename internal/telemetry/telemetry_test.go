package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/errors"
	"github.com/exrt/exllm/pkg/types"
)

func TestSpan_SuccessEnrichesWithUsage(t *testing.T) {
	r := New(nil)
	cost := 1.25

	result, err := Span(context.Background(), r, "chat", map[string]any{"provider": "openai"},
		func(ctx context.Context) (any, error) {
			return &types.LLMResponse{
				Usage: types.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
				Cost:  &cost,
			}, nil
		})

	require.NoError(t, err)
	resp, ok := result.(*types.LLMResponse)
	require.True(t, ok)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestSpan_ErrorReraisesAndClassifies(t *testing.T) {
	r := New(nil)
	boom := errors.New(errors.KindProvider, "upstream exploded")

	_, err := Span(context.Background(), r, "chat", nil, func(ctx context.Context) (any, error) {
		return nil, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRecorder_EmitDoesNotPanicOnNilFields(t *testing.T) {
	r := New(nil)
	assert.NotPanics(t, func() {
		r.Emit("cache.hit", nil)
	})
}
