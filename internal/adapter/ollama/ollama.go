// Package ollama adapts a local Ollama daemon's native chat endpoint
// onto the canonical adapter contract. Ollama doesn't speak OpenAI's
// wire format: /api/chat takes a bare {model, messages, stream,
// options} body and streams back newline-delimited JSON objects
// rather than SSE, so this is bespoke rather than openaicompat-based,
// the same way gemini and anthropic are bespoke for their own
// wire-format divergences.
package ollama

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

// ProviderName is the identifier for this provider.
const ProviderName = "ollama"

// DefaultBaseURL is the default local Ollama endpoint.
const DefaultBaseURL = "http://localhost:11434"

// modelPrefixes identify the common local model families Ollama hosts.
// Any other model name is still accepted and left to the daemon to reject.
var modelPrefixes = []string{"llama", "mistral", "qwen", "gemma", "phi", "codellama", "mixtral"}

// Adapter implements adapter.Adapter for Ollama's /api/chat endpoint.
type Adapter struct{}

// New returns the Ollama adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return ProviderName }

// SupportsModel implements adapter.Adapter.
func (a *Adapter) SupportsModel(model string) bool {
	for _, prefix := range modelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// SupportsEmbedding implements adapter.Adapter. Ollama exposes
// /api/embeddings separately; it's out of scope until a caller needs
// local embedding models.
func (a *Adapter) SupportsEmbedding() bool { return false }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *wireOptions  `json:"options,omitempty"`
}

func baseURL(req *types.Request) string {
	if v := req.Config.String("base_url", ""); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	return DefaultBaseURL
}

func transformMessages(messages []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{Role: string(m.Role), Content: m.PlainText()})
	}
	return out
}

func transformOptions(req *types.Request) *wireOptions {
	opts := &wireOptions{}
	set := false
	if t, ok := req.Options.Temperature(); ok {
		opts.Temperature = &t
		set = true
	}
	if mt, ok := req.Options.MaxTokens(); ok {
		opts.NumPredict = &mt
		set = true
	}
	if v, ok := req.Options.Get("top_p"); ok {
		if f, ok := toFloat(v); ok {
			opts.TopP = &f
			set = true
		}
	}
	if v, ok := req.Options.Get("stop"); ok {
		if s := toStringSlice(v); len(s) > 0 {
			opts.Stop = s
			set = true
		}
	}
	if v, ok := req.Options.Get("seed"); ok {
		if f, ok := toFloat(v); ok {
			seed := int(f)
			opts.Seed = &seed
			set = true
		}
	}
	if !set {
		return nil
	}
	return opts
}

// BuildRequest implements adapter.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	wire := wireRequest{
		Model:    req.Config.String("model", req.Options.String("model", "")),
		Messages: transformMessages(req.Messages),
		Stream:   req.Options.Stream(),
		Options:  transformOptions(req),
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := baseURL(req) + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := req.Config.String("api_key", ""); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	return httpReq, nil
}

type wireResponse struct {
	Model           string      `json:"model"`
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
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

	finishReason := ""
	if wire.Done {
		finishReason = "stop"
	}

	return &types.LLMResponse{
		Content:      wire.Message.Content,
		Model:        wire.Model,
		FinishReason: finishReason,
		Usage: types.Usage{
			InputTokens:  wire.PromptEvalCount,
			OutputTokens: wire.EvalCount,
			TotalTokens:  wire.PromptEvalCount + wire.EvalCount,
		},
		Metadata: types.ResponseMetadata{Provider: ProviderName, Role: "assistant"},
	}, nil
}

// ParseStreamChunk implements adapter.Adapter. data is one already
// line-delimited JSON object decoded by internal/decode.NDJSONDecoder.
func (a *Adapter) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var wire wireResponse
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal chunk: %w", err)
	}

	if wire.Done {
		return &types.StreamChunk{
			FinishReason: "stop",
			Model:        wire.Model,
			Usage: &types.Usage{
				InputTokens:  wire.PromptEvalCount,
				OutputTokens: wire.EvalCount,
				TotalTokens:  wire.PromptEvalCount + wire.EvalCount,
			},
		}, nil
	}
	if wire.Message.Content == "" {
		return nil, nil
	}
	return &types.StreamChunk{Content: wire.Message.Content, Model: wire.Model}, nil
}

// MapError implements adapter.Adapter.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		message = errResp.Error
	}
	return adapter.MapHTTPStatus(ProviderName, "", statusCode, message)
}

// BuildEmbeddingRequest implements adapter.Adapter.
func (a *Adapter) BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error) {
	return nil, fmt.Errorf("%s: embeddings not supported by this adapter", ProviderName)
}

// ParseEmbeddingResponse implements adapter.Adapter.
func (a *Adapter) ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error) {
	return nil, fmt.Errorf("%s: embeddings not supported by this adapter", ProviderName)
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
