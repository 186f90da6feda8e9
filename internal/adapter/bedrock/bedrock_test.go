package bedrock

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/types"
)

func testConfig() aws.Config {
	return aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIA-test", "secret", ""),
	}
}

func TestBuildRequest_SignsClaude3Payload(t *testing.T) {
	a := New(testConfig())
	req := types.NewRequest("r1", "bedrock", []types.Message{
		{Role: types.RoleSystem, Text: "be terse"},
		{Role: types.RoleUser, Text: "hi"},
	}, nil)
	req.Config.Set("model", "anthropic.claude-3-sonnet-20240229-v1:0")

	httpReq, err := a.BuildRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, httpReq.URL.String(), "anthropic.claude-3-sonnet-20240229-v1:0/invoke")
	assert.Contains(t, httpReq.Header.Get("Authorization"), "AWS4-HMAC-SHA256")
}

func TestBuildRequest_UnsupportedModelFamily(t *testing.T) {
	a := New(testConfig())
	req := types.NewRequest("r1", "bedrock", []types.Message{{Role: types.RoleUser, Text: "hi"}}, nil)
	req.Config.Set("model", "unknown.model-v1")

	_, err := a.BuildRequest(context.Background(), req)
	require.Error(t, err)
}

func TestParseResponse_DetectsClaudeShape(t *testing.T) {
	a := New(testConfig())
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(`{
		"content": [{"text": "hello"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 4, "output_tokens": 2}
	}`))}

	out, err := a.ParseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
	assert.Equal(t, 6, out.Usage.TotalTokens)
	assert.Equal(t, "end_turn", out.FinishReason)
}

func TestParseResponse_MapsMaxTokensStopReasonToLength(t *testing.T) {
	a := New(testConfig())
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(`{
		"content": [{"text": "hello"}],
		"stop_reason": "max_tokens",
		"usage": {"input_tokens": 4, "output_tokens": 2}
	}`))}

	out, err := a.ParseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "length", out.FinishReason)
}

func TestParseStreamChunk_MessageDeltaCarriesStopReason(t *testing.T) {
	a := New(testConfig())
	chunk, err := a.ParseStreamChunk([]byte(`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "length", chunk.FinishReason)
}

func TestParseStreamChunk_ClaudeDelta(t *testing.T) {
	a := New(testConfig())
	chunk, err := a.ParseStreamChunk([]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "hi", chunk.Content)
}
