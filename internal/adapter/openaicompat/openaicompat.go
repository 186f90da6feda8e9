// Package openaicompat is the shared adapter template for providers
// that speak OpenAI's chat-completions wire format with only cosmetic
// differences (base URL, auth header, model prefixes). Grounded on
// providers/openailike's Info-struct parameterization; openai, groq,
// mistral, openrouter, perplexity, and xai all instantiate this
// template instead of repeating the request/response plumbing.
package openaicompat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/pkg/types"
)

// Info parameterizes one OpenAI-compatible provider.
type Info struct {
	// Name is the provider identifier (e.g. "groq", "xai").
	Name string

	// DefaultBaseURL is used when Request.Config carries no base_url.
	DefaultBaseURL string

	// APIKeyHeader is the auth header name. Defaults to "Authorization".
	APIKeyHeader string

	// APIKeyPrefix prefixes the key value. Defaults to "Bearer " when
	// APIKeyHeader is "Authorization".
	APIKeyPrefix string

	// ChatEndpoint is the chat completions path. Defaults to
	// "/chat/completions".
	ChatEndpoint string

	// EmbeddingEndpoint is the embeddings path. Defaults to "/embeddings".
	EmbeddingEndpoint string

	// SupportsEmbedding gates SupportsEmbedding().
	SupportsEmbedding bool

	// ExtraHeaders are set on every request after auth.
	ExtraHeaders map[string]string

	// ModelPrefixes identify models belonging to this provider.
	ModelPrefixes []string
}

// Adapter implements adapter.Adapter for one OpenAI-compatible provider.
type Adapter struct {
	info Info
}

// New returns an Adapter for info. Satisfies adapter.Adapter.
func New(info Info) *Adapter {
	return &Adapter{info: info}
}

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return a.info.Name }

// SupportsModel implements adapter.Adapter.
func (a *Adapter) SupportsModel(model string) bool {
	for _, prefix := range a.info.ModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// SupportsEmbedding implements adapter.Adapter.
func (a *Adapter) SupportsEmbedding() bool { return a.info.SupportsEmbedding }

func (a *Adapter) baseURL(req *types.Request) string {
	if v := req.Config.String("base_url", ""); v != "" {
		return v
	}
	return a.info.DefaultBaseURL
}

func (a *Adapter) setCommonHeaders(httpReq *http.Request, req *types.Request) {
	httpReq.Header.Set("Content-Type", "application/json")

	header := a.info.APIKeyHeader
	if header == "" {
		header = "Authorization"
	}
	prefix := a.info.APIKeyPrefix
	if prefix == "" && header == "Authorization" {
		prefix = "Bearer "
	}
	httpReq.Header.Set(header, prefix+req.Config.String("api_key", ""))

	for k, v := range a.info.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
}

// BuildRequest implements adapter.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	wire := wireRequest{
		Model:    req.Config.String("model", req.Options.String("model", "")),
		Messages: req.Messages,
		Stream:   req.Options.Stream(),
	}
	if t, ok := req.Options.Temperature(); ok {
		wire.Temperature = &t
	}
	if mt, ok := req.Options.MaxTokens(); ok {
		wire.MaxTokens = &mt
	}
	if v, ok := req.Options.Get("top_p"); ok {
		if f, ok := toFloat(v); ok {
			wire.TopP = &f
		}
	}
	if v, ok := req.Options.Get("stop"); ok {
		wire.Stop = toStringSlice(v)
	}
	if v, ok := req.Options.Get("tools"); ok {
		if tools, ok := v.([]types.Tool); ok {
			wire.Tools = tools
		}
	}
	if v, ok := req.Options.Get("tool_choice"); ok {
		wire.ToolChoice = v
	}
	if v, ok := req.Options.Get("seed"); ok {
		if n, ok := toFloat(v); ok {
			seed := int(n)
			wire.Seed = &seed
		}
	}
	if v, ok := req.Options.Get("frequency_penalty"); ok {
		if f, ok := toFloat(v); ok {
			wire.FrequencyPenalty = &f
		}
	}
	if v, ok := req.Options.Get("presence_penalty"); ok {
		if f, ok := toFloat(v); ok {
			wire.PresencePenalty = &f
		}
	}
	if v, ok := req.Options.Get("n"); ok {
		if f, ok := toFloat(v); ok {
			n := int(f)
			wire.N = &n
		}
	}
	wire.User = req.Options.String("user", "")

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := a.info.ChatEndpoint
	if endpoint == "" {
		endpoint = "/chat/completions"
	}
	url := strings.TrimSuffix(a.baseURL(req), "/") + endpoint

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	a.setCommonHeaders(httpReq, req)
	return httpReq, nil
}

// ParseResponse implements adapter.Adapter.
func (a *Adapter) ParseResponse(resp *http.Response) (*types.LLMResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("%s: response carried no choices", a.info.Name)
	}
	choice := wire.Choices[0]

	out := &types.LLMResponse{
		Content:      choice.Message.Content,
		Model:        wire.Model,
		Usage:        wire.Usage.toUsage(),
		FinishReason: choice.FinishReason,
		ToolCalls:    choice.Message.ToolCalls,
		FunctionCall: choice.Message.FunctionCall,
		Refusal:      choice.Message.Refusal,
		Logprobs:     choice.Logprobs,
		Metadata:     types.ResponseMetadata{Provider: a.info.Name, Role: choice.Message.Role},
	}
	out.NormalizeToolCalls()
	return out, nil
}

// ParseStreamChunk implements adapter.Adapter.
func (a *Adapter) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[DONE]")) {
		return nil, nil
	}

	var wire wireStreamChunk
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal chunk: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, nil
	}
	choice := wire.Choices[0]

	chunk := &types.StreamChunk{
		Content:      choice.Delta.Content,
		FinishReason: choice.FinishReason,
		Model:        wire.Model,
		ToolCalls:    choice.Delta.ToolCalls,
	}
	if wire.Usage != nil {
		usage := wire.Usage.toUsage()
		chunk.Usage = &usage
	}
	return chunk, nil
}

// MapError implements adapter.Adapter.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	var errResp wireErrorBody
	message := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		message = errResp.Error.Message
	}
	return adapter.MapHTTPStatus(a.info.Name, "", statusCode, message)
}

// BuildEmbeddingRequest implements adapter.Adapter.
func (a *Adapter) BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error) {
	if err := embReq.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding request: %w", err)
	}

	body, err := json.Marshal(embReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := a.info.EmbeddingEndpoint
	if endpoint == "" {
		endpoint = "/embeddings"
	}
	url := strings.TrimSuffix(a.baseURL(req), "/") + endpoint

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	a.setCommonHeaders(httpReq, req)
	return httpReq, nil
}

// ParseEmbeddingResponse implements adapter.Adapter.
func (a *Adapter) ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var embResp types.EmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &embResp, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
