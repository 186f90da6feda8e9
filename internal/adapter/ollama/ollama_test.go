package ollama

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/types"
)

func TestBuildRequest_TargetsNativeChatEndpoint(t *testing.T) {
	a := New()
	req := types.NewRequest("r1", "ollama", []types.Message{{Role: types.RoleUser, Text: "hi"}}, nil)
	req.Config.Set("model", "llama3")

	httpReq, err := a.BuildRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/api/chat", httpReq.URL.String())

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"model":"llama3"`)
	assert.NotContains(t, string(body), "/v1/chat/completions")
}

func TestBuildRequest_HonorsCustomBaseURL(t *testing.T) {
	a := New()
	req := types.NewRequest("r1", "ollama", []types.Message{{Role: types.RoleUser, Text: "hi"}}, nil)
	req.Config.Set("base_url", "http://10.0.0.5:11434")

	httpReq, err := a.BuildRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:11434/api/chat", httpReq.URL.String())
}

func TestParseResponse_NonStreamingDoneTrue(t *testing.T) {
	a := New()
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(`{
		"model": "llama3",
		"message": {"role": "assistant", "content": "hi there"},
		"done": true,
		"prompt_eval_count": 5,
		"eval_count": 3
	}`))}

	out, err := a.ParseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Content)
	assert.Equal(t, "stop", out.FinishReason)
	assert.Equal(t, 8, out.Usage.TotalTokens)
}

func TestParseStreamChunk_IncrementalLineCarriesContent(t *testing.T) {
	a := New()
	chunk, err := a.ParseStreamChunk([]byte(`{"model":"llama3","message":{"content":"Hel"},"done":false}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "Hel", chunk.Content)
	assert.Empty(t, chunk.FinishReason)
}

func TestParseStreamChunk_DoneLineIsTerminal(t *testing.T) {
	a := New()
	chunk, err := a.ParseStreamChunk([]byte(`{"done":true}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "stop", chunk.FinishReason)
}
