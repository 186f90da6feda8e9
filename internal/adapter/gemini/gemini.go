// Package gemini adapts Google Gemini's generateContent API onto the
// canonical adapter contract. Gemini's auth travels as a "key" query
// parameter rather than a header, and streaming uses
// streamGenerateContent with a distinct URL action instead of a
// separate endpoint, so this is bespoke rather than openaicompat-based.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/pkg/types"
)

// ProviderName is the identifier for this provider.
const ProviderName = "gemini"

// DefaultBaseURL is the default Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultAPIVersion is the Gemini REST API version path segment.
const DefaultAPIVersion = "v1beta"

// Adapter implements adapter.Adapter for Gemini's generateContent API.
type Adapter struct{}

// New returns the Gemini adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return ProviderName }

// SupportsModel implements adapter.Adapter.
func (a *Adapter) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "gemini-")
}

// SupportsEmbedding implements adapter.Adapter.
func (a *Adapter) SupportsEmbedding() bool { return true }

type wireRequest struct {
	Contents          []wireContent     `json:"contents"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type wireResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// BuildRequest implements adapter.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	wire := transformRequest(req)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	action := "generateContent"
	streaming := req.Options.Stream()
	if streaming {
		action = "streamGenerateContent"
	}

	model := req.Config.String("model", req.Options.String("model", ""))
	base, err := url.Parse(strings.TrimSuffix(baseURL(req), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	apiVersion := req.Config.String("api_version", DefaultAPIVersion)
	base.Path = base.Path + "/" + apiVersion + "/models/" + url.PathEscape(model) + ":" + action
	q := base.Query()
	q.Set("key", req.Config.String("api_key", ""))
	if streaming {
		// Gemini's streamGenerateContent defaults to a raw JSON-array
		// body; alt=sse switches it to line-delimited SSE so it can
		// share the same decoder as every other streaming provider.
		q.Set("alt", "sse")
	}
	base.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func baseURL(req *types.Request) string {
	if v := req.Config.String("base_url", ""); v != "" {
		return v
	}
	return DefaultBaseURL
}

func transformRequest(req *types.Request) *wireRequest {
	wire := &wireRequest{GenerationConfig: &generationConfig{}}
	if mt, ok := req.Options.MaxTokens(); ok {
		wire.GenerationConfig.MaxOutputTokens = mt
	}
	if t, ok := req.Options.Temperature(); ok {
		wire.GenerationConfig.Temperature = &t
	}
	if v, ok := req.Options.Get("top_p"); ok {
		if f, ok := v.(float64); ok {
			wire.GenerationConfig.TopP = &f
		}
	}

	for _, msg := range req.Messages {
		if msg.Role == types.RoleSystem {
			wire.SystemInstruction = &wireContent{Parts: []wirePart{{Text: msg.PlainText()}}}
			continue
		}
		role := string(msg.Role)
		if msg.Role == types.RoleAssistant {
			role = "model"
		}
		wire.Contents = append(wire.Contents, wireContent{Role: role, Parts: []wirePart{{Text: msg.PlainText()}}})
	}
	return wire
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
	if len(wire.Candidates) == 0 {
		return nil, fmt.Errorf("%s: response carried no candidates", ProviderName)
	}

	c := wire.Candidates[0]
	var text string
	for _, part := range c.Content.Parts {
		text += part.Text
	}

	out := &types.LLMResponse{
		Content:      text,
		FinishReason: mapFinishReason(c.FinishReason),
		Metadata:     types.ResponseMetadata{Provider: ProviderName, Role: "assistant"},
	}
	if wire.UsageMetadata != nil {
		out.Usage = types.Usage{
			InputTokens:  wire.UsageMetadata.PromptTokenCount,
			OutputTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  wire.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return reason
	}
}

// ParseStreamChunk implements adapter.Adapter.
func (a *Adapter) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var wire wireResponse
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, nil
	}
	if len(wire.Candidates) == 0 {
		return nil, nil
	}
	c := wire.Candidates[0]
	var text string
	for _, part := range c.Content.Parts {
		text += part.Text
	}
	chunk := &types.StreamChunk{Content: text}
	if c.FinishReason != "" {
		chunk.FinishReason = mapFinishReason(c.FinishReason)
	}
	return chunk, nil
}

// MapError implements adapter.Adapter.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		message = errResp.Error.Message
	}
	return adapter.MapHTTPStatus(ProviderName, "", statusCode, message)
}

type embeddingWireRequest struct {
	Model   string          `json:"model"`
	Content wireContent     `json:"content"`
}

type embeddingWireResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// BuildEmbeddingRequest implements adapter.Adapter.
func (a *Adapter) BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error) {
	if err := embReq.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding request: %w", err)
	}
	text := ""
	if embReq.Input.Text != nil {
		text = *embReq.Input.Text
	} else if len(embReq.Input.Texts) > 0 {
		text = embReq.Input.Texts[0]
	}

	wire := embeddingWireRequest{
		Model:   "models/" + embReq.Model,
		Content: wireContent{Parts: []wirePart{{Text: text}}},
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	base, err := url.Parse(strings.TrimSuffix(baseURL(req), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	apiVersion := req.Config.String("api_version", DefaultAPIVersion)
	base.Path = base.Path + "/" + apiVersion + "/models/" + url.PathEscape(embReq.Model) + ":embedContent"
	q := base.Query()
	q.Set("key", req.Config.String("api_key", ""))
	base.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// ParseEmbeddingResponse implements adapter.Adapter.
func (a *Adapter) ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var wire embeddingWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &types.EmbeddingResponse{
		Object: "list",
		Data:   []types.EmbeddingObject{{Object: "embedding", Embedding: wire.Embedding.Values, Index: 0}},
	}, nil
}
