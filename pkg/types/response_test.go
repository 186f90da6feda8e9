package types //nolint:revive // package name is intentional

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMResponse_NormalizeToolCalls(t *testing.T) {
	resp := &LLMResponse{
		FunctionCall: &ToolCallFunction{Name: "get_weather", Arguments: `{"city":"nyc"}`},
	}

	resp.NormalizeToolCalls()

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, "call_get_weather", resp.ToolCalls[0].ID)
	assert.Equal(t, "function", resp.ToolCalls[0].Type)
}

func TestLLMResponse_NormalizeToolCalls_NoOpWhenAlreadyPresent(t *testing.T) {
	existing := []ToolCall{{ID: "call_1", Type: "function"}}
	resp := &LLMResponse{
		FunctionCall: &ToolCallFunction{Name: "ignored"},
		ToolCalls:    existing,
	}

	resp.NormalizeToolCalls()

	assert.Equal(t, existing, resp.ToolCalls)
}

func TestStreamChunk_Terminal(t *testing.T) {
	assert.False(t, StreamChunk{Content: "partial"}.Terminal())
	assert.True(t, StreamChunk{FinishReason: "stop"}.Terminal())
}
