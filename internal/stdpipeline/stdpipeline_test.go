package stdpipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/internal/adapter/local"
	"github.com/exrt/exllm/internal/adapter/ollama"
	"github.com/exrt/exllm/internal/pipeline"
	"github.com/exrt/exllm/pkg/types"
)

// fakeAdapter is a minimal HTTP-backed adapter for exercising the
// pipeline without a real provider: every non-streaming response has
// the fixed content "echo: hi".
type fakeAdapter struct {
	baseURL string
}

func (f *fakeAdapter) Name() string              { return "fake" }
func (f *fakeAdapter) SupportsModel(string) bool { return true }
func (f *fakeAdapter) SupportsEmbedding() bool    { return false }

func (f *fakeAdapter) BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/chat", strings.NewReader("{}"))
}

func (f *fakeAdapter) ParseResponse(resp *http.Response) (*types.LLMResponse, error) {
	return &types.LLMResponse{Content: "echo: hi", FinishReason: "stop"}, nil
}

func (f *fakeAdapter) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return &types.StreamChunk{Content: text}, nil
}

func (f *fakeAdapter) MapError(statusCode int, body []byte) error {
	return adapter.MapHTTPStatus("fake", "", statusCode, string(body))
}

func (f *fakeAdapter) BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error) {
	return nil, fmt.Errorf("not supported")
}

func (f *fakeAdapter) ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error) {
	return nil, fmt.Errorf("not supported")
}

func TestBuild_NonStreamingHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := adapter.NewRegistry()
	reg.Register("fake", &fakeAdapter{baseURL: srv.URL})

	p := Build(Deps{Adapters: reg})
	req := types.NewRequest("r1", "fake", []types.Message{{Role: types.RoleUser, Text: "hi"}}, nil)

	out := pipeline.Run(pipeline.NewContext(context.Background(), nil), p, req)

	require.False(t, out.Halted, "errors: %+v", out.Errors)
	require.NotNil(t, out.Result)
	assert.Equal(t, "echo: hi", out.Result.Content)
	assert.Equal(t, types.StateCompleted, out.State)
}

func TestBuild_UnregisteredProviderHalts(t *testing.T) {
	reg := adapter.NewRegistry()
	p := Build(Deps{Adapters: reg})
	req := types.NewRequest("r1", "nope", []types.Message{{Role: types.RoleUser, Text: "hi"}}, nil)

	out := pipeline.Run(pipeline.NewContext(context.Background(), nil), p, req)

	require.True(t, out.Halted)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "ValidateProvider", out.Errors[0].Plug)
}

func TestBuild_EmptyMessagesHalts(t *testing.T) {
	reg := adapter.NewRegistry()
	reg.Register("fake", &fakeAdapter{baseURL: "http://unused"})
	p := Build(Deps{Adapters: reg})
	req := types.NewRequest("r1", "fake", nil, nil)

	out := pipeline.Run(pipeline.NewContext(context.Background(), nil), p, req)

	require.True(t, out.Halted)
	assert.Equal(t, "ValidateMessages", out.Errors[0].Plug)
}

func TestBuild_ProviderErrorStatusHalts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	reg := adapter.NewRegistry()
	reg.Register("fake", &fakeAdapter{baseURL: srv.URL})
	p := Build(Deps{Adapters: reg})
	req := types.NewRequest("r1", "fake", []types.Message{{Role: types.RoleUser, Text: "hi"}}, nil)

	out := pipeline.Run(pipeline.NewContext(context.Background(), nil), p, req)

	require.True(t, out.Halted)
	assert.Equal(t, "ExecuteRequest", out.Errors[0].Plug)
}

// fakeLocalGenerator is a deterministic local.Generator double.
type fakeLocalGenerator struct{}

func (fakeLocalGenerator) SupportsModel(model string) bool { return true }

func (fakeLocalGenerator) Generate(ctx context.Context, req *types.Request) (*types.LLMResponse, error) {
	return &types.LLMResponse{Content: "local echo", FinishReason: "stop"}, nil
}

func (fakeLocalGenerator) GenerateStream(ctx context.Context, req *types.Request) (<-chan types.StreamChunk, error) {
	out := make(chan types.StreamChunk, 2)
	out <- types.StreamChunk{Content: "lo"}
	out <- types.StreamChunk{FinishReason: "stop"}
	close(out)
	return out, nil
}

func TestBuild_LocalProviderSkipsHTTP(t *testing.T) {
	reg := adapter.NewRegistry()
	reg.Register("local", local.New(fakeLocalGenerator{}))
	p := Build(Deps{Adapters: reg})
	req := types.NewRequest("r1", "local", []types.Message{{Role: types.RoleUser, Text: "hi"}}, nil)

	out := pipeline.Run(pipeline.NewContext(context.Background(), nil), p, req)

	require.False(t, out.Halted, "errors: %+v", out.Errors)
	require.NotNil(t, out.Result)
	assert.Equal(t, "local echo", out.Result.Content)
}

func TestBuild_LocalProviderStreaming(t *testing.T) {
	reg := adapter.NewRegistry()
	reg.Register("local", local.New(fakeLocalGenerator{}))
	p := Build(Deps{Adapters: reg})
	req := types.NewRequest("r1", "local", []types.Message{{Role: types.RoleUser, Text: "hi"}}, map[string]any{"stream": true})

	out := pipeline.Run(pipeline.NewContext(context.Background(), nil), p, req)

	require.False(t, out.Halted, "errors: %+v", out.Errors)
	assert.Equal(t, types.StateStreaming, out.State)
	chAny, ok := out.AssignValue("response_stream")
	require.True(t, ok)
	ch := chAny.(<-chan types.StreamChunk)

	var content strings.Builder
	var sawTerminal bool
	for c := range ch {
		content.WriteString(c.Content)
		if c.Terminal() {
			sawTerminal = true
		}
	}
	assert.Equal(t, "lo", content.String())
	assert.True(t, sawTerminal)
}

// TestBuild_OllamaStreamingDecodesNDJSON drives the real HTTP-backed
// ollama.Adapter through the pipeline against a server that emits raw
// newline-delimited JSON (no SSE framing, no [DONE] sentinel) to prove
// decoderFor actually routes ollama through NewNDJSONDecoder rather
// than falling through to the SSE default.
func TestBuild_OllamaStreamingDecodesNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"model":"llama3","message":{"content":"Hel"},"done":false}`,
			`{"model":"llama3","message":{"content":"lo"},"done":false}`,
			`{"model":"llama3","done":true,"prompt_eval_count":4,"eval_count":2}`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
		}
	}))
	defer srv.Close()

	reg := adapter.NewRegistry()
	reg.Register(ollama.ProviderName, ollama.New())
	p := Build(Deps{Adapters: reg})
	req := types.NewRequest("r1", ollama.ProviderName, []types.Message{{Role: types.RoleUser, Text: "hi"}}, map[string]any{"stream": true})
	req.Config.Set("base_url", srv.URL)
	req.Config.Set("model", "llama3")

	out := pipeline.Run(pipeline.NewContext(context.Background(), nil), p, req)

	require.False(t, out.Halted, "errors: %+v", out.Errors)
	assert.Equal(t, types.StateStreaming, out.State)
	chAny, ok := out.AssignValue("response_stream")
	require.True(t, ok)
	ch := chAny.(<-chan types.StreamChunk)

	var contents []string
	var finishReason string
	for c := range ch {
		if c.Content != "" {
			contents = append(contents, c.Content)
		}
		if c.Terminal() {
			finishReason = c.FinishReason
		}
	}
	assert.Equal(t, []string{"Hel", "lo"}, contents)
	assert.Equal(t, "stop", finishReason)
}
