package local

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/pkg/types"
)

// fakeGenerator is a deterministic stand-in for a real in-process
// runner, echoing the last user message back token by token.
type fakeGenerator struct {
	model string
}

func (f *fakeGenerator) SupportsModel(model string) bool { return model == f.model }

func (f *fakeGenerator) Generate(ctx context.Context, req *types.Request) (*types.LLMResponse, error) {
	return &types.LLMResponse{
		Content:      lastUserText(req),
		FinishReason: "stop",
		Metadata:     types.ResponseMetadata{Provider: ProviderName, Role: "assistant"},
	}, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req *types.Request) (<-chan types.StreamChunk, error) {
	out := make(chan types.StreamChunk)
	go func() {
		defer close(out)
		for _, tok := range strings.Fields(lastUserText(req)) {
			select {
			case out <- types.StreamChunk{Content: tok + " "}:
			case <-ctx.Done():
				return
			}
		}
		out <- types.StreamChunk{FinishReason: "stop"}
	}()
	return out, nil
}

func lastUserText(req *types.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			return req.Messages[i].PlainText()
		}
	}
	return ""
}

func TestAdapter_ImplementsLocalRunner(t *testing.T) {
	a := New(&fakeGenerator{model: "tiny-llama"})
	var _ adapter.LocalRunner = a
	assert.True(t, a.SupportsModel("tiny-llama"))
	assert.False(t, a.SupportsModel("gpt-4o"))
	assert.False(t, a.SupportsEmbedding())
}

func TestRun_ReturnsGeneratedResponse(t *testing.T) {
	a := New(&fakeGenerator{model: "tiny-llama"})
	req := types.NewRequest("r1", ProviderName, []types.Message{{Role: types.RoleUser, Text: "hello world"}}, nil)

	out, err := a.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Content)
	assert.Equal(t, "stop", out.FinishReason)
}

func TestRunStream_EmitsTokensThenTerminalChunk(t *testing.T) {
	a := New(&fakeGenerator{model: "tiny-llama"})
	req := types.NewRequest("r1", ProviderName, []types.Message{{Role: types.RoleUser, Text: "a b c"}}, nil)

	ch, err := a.RunStream(context.Background(), req)
	require.NoError(t, err)

	var content strings.Builder
	var sawTerminal bool
	for chunk := range ch {
		content.WriteString(chunk.Content)
		if chunk.Terminal() {
			sawTerminal = true
		}
	}
	assert.Equal(t, "a b c ", content.String())
	assert.True(t, sawTerminal)
}

func TestBuildRequest_NotUsedForLocalRunner(t *testing.T) {
	a := New(&fakeGenerator{model: "tiny-llama"})
	_, err := a.BuildRequest(context.Background(), types.NewRequest("r1", ProviderName, nil, nil))
	require.Error(t, err)
}
