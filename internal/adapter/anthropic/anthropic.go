// Package anthropic adapts Anthropic's Messages API onto the
// canonical adapter contract. Anthropic's wire shape diverges from
// OpenAI's enough (system prompt pulled out of the message list,
// max_tokens required, SSE event types instead of delta objects) that
// it is implemented bespoke rather than through openaicompat, grounded
// on the same request/response transform shape as providers/anthropic.
package anthropic

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
const ProviderName = "anthropic"

// DefaultBaseURL is the default Anthropic API endpoint.
const DefaultBaseURL = "https://api.anthropic.com"

// DefaultAPIVersion is the anthropic-version header value.
const DefaultAPIVersion = "2023-06-01"

// DefaultMaxTokens is used when the request sets none; Anthropic
// requires max_tokens on every call.
const DefaultMaxTokens = 4096

// modelPrefixes identify models belonging to this provider.
var modelPrefixes = []string{"claude-"}

// Adapter implements adapter.Adapter for the Anthropic Messages API.
type Adapter struct{}

// New returns the Anthropic adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return ProviderName }

// SupportsModel implements adapter.Adapter.
func (a *Adapter) SupportsModel(model string) bool {
	for _, p := range modelPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// SupportsEmbedding implements adapter.Adapter. Anthropic has no
// embeddings endpoint.
func (a *Adapter) SupportsEmbedding() bool { return false }

type wireRequest struct {
	Model         string          `json:"model"`
	Messages      []wireMessage   `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	System        string          `json:"system,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []wireTool      `json:"tools,omitempty"`
	ToolChoice    *wireToolChoice `json:"tool_choice,omitempty"`
}

type wireMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type wireTool struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	InputSchema inputSchema  `json:"input_schema"`
}

type inputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

type wireToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// BuildRequest implements adapter.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	wire := wireRequest{
		Model:     req.Config.String("model", req.Options.String("model", "")),
		MaxTokens: DefaultMaxTokens,
		Stream:    req.Options.Stream(),
	}
	if mt, ok := req.Options.MaxTokens(); ok && mt > 0 {
		wire.MaxTokens = mt
	}
	if t, ok := req.Options.Temperature(); ok {
		wire.Temperature = &t
	}

	messages, systemPrompt := transformMessages(req.Messages)
	wire.Messages = messages
	wire.System = systemPrompt

	if v, ok := req.Options.Get("tools"); ok {
		if tools, ok := v.([]types.Tool); ok {
			wire.Tools = transformTools(tools)
		}
	}
	if v, ok := req.Options.Get("tool_choice"); ok {
		if tc := transformToolChoice(v); tc != nil {
			wire.ToolChoice = tc
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(baseURL(req), "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.Config.String("api_key", ""))
	httpReq.Header.Set("anthropic-version", req.Config.String("api_version", DefaultAPIVersion))
	return httpReq, nil
}

func baseURL(req *types.Request) string {
	if v := req.Config.String("base_url", ""); v != "" {
		return v
	}
	return DefaultBaseURL
}

func transformMessages(messages []types.Message) ([]wireMessage, string) {
	var result []wireMessage
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			systemPrompt += msg.PlainText()
		case types.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				blocks := make([]contentBlock, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					var input any
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						input = tc.Function.Arguments
					}
					blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
				}
				result = append(result, wireMessage{Role: "assistant", Content: blocks})
				continue
			}
			result = append(result, wireMessage{Role: "assistant", Content: []contentBlock{{Type: "text", Text: msg.PlainText()}}})
		case types.RoleTool:
			result = append(result, wireMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.PlainText(),
				}},
			})
		default:
			result = append(result, wireMessage{Role: string(msg.Role), Content: []contentBlock{{Type: "text", Text: msg.PlainText()}}})
		}
	}

	return result, systemPrompt
}

func transformTools(tools []types.Tool) []wireTool {
	result := make([]wireTool, 0, len(tools))
	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		var params map[string]any
		if len(tool.Function.Parameters) > 0 {
			_ = json.Unmarshal(tool.Function.Parameters, &params)
		}
		schema := inputSchema{Type: "object", Properties: map[string]any{}}
		if props, ok := params["properties"].(map[string]any); ok {
			schema.Properties = props
		}
		if required, ok := params["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		result = append(result, wireTool{Name: tool.Function.Name, Description: tool.Function.Description, InputSchema: schema})
	}
	return result
}

func transformToolChoice(raw any) *wireToolChoice {
	switch v := raw.(type) {
	case string:
		switch v {
		case "auto":
			return &wireToolChoice{Type: "auto"}
		case "required":
			return &wireToolChoice{Type: "any"}
		case "none":
			return &wireToolChoice{Type: "none"}
		}
	case map[string]any:
		if fn, ok := v["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				return &wireToolChoice{Type: "tool", Name: name}
			}
		}
	}
	return nil
}

type wireResponse struct {
	ID           string         `json:"id"`
	Content      []contentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	Usage        wireUsage      `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
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

	var textContent string
	var toolCalls []types.ToolCall
	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			textContent += block.Text
		case "tool_use":
			inputJSON, err := json.Marshal(block.Input)
			if err != nil {
				inputJSON = []byte("{}")
			}
			toolCalls = append(toolCalls, types.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: types.ToolCallFunction{
					Name:      block.Name,
					Arguments: string(inputJSON),
				},
			})
		}
	}

	out := &types.LLMResponse{
		Content:      textContent,
		Model:        wire.Model,
		FinishReason: mapStopReason(wire.StopReason),
		ToolCalls:    toolCalls,
		Usage: types.Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
			TotalTokens:  wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
		Metadata: types.ResponseMetadata{Provider: ProviderName, Role: "assistant"},
	}
	out.NormalizeToolCalls()
	return out, nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}

// ParseStreamChunk implements adapter.Adapter, translating Anthropic's
// named SSE events into the canonical delta shape.
func (a *Adapter) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var event map[string]any
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, nil
	}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "content_block_delta":
		delta, _ := event["delta"].(map[string]any)
		if delta["type"] != "text_delta" {
			return nil, nil
		}
		text, _ := delta["text"].(string)
		return &types.StreamChunk{Content: text}, nil

	case "message_start":
		msg, _ := event["message"].(map[string]any)
		model, _ := msg["model"].(string)
		return &types.StreamChunk{Model: model}, nil

	case "message_delta":
		delta, _ := event["delta"].(map[string]any)
		stopReason, _ := delta["stop_reason"].(string)
		if stopReason == "" {
			return nil, nil
		}
		return &types.StreamChunk{FinishReason: mapStopReason(stopReason)}, nil

	default:
		return nil, nil
	}
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

// BuildEmbeddingRequest implements adapter.Adapter. Anthropic has no
// embeddings endpoint.
func (a *Adapter) BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error) {
	return nil, fmt.Errorf("%s: embeddings not supported", ProviderName)
}

// ParseEmbeddingResponse implements adapter.Adapter.
func (a *Adapter) ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error) {
	return nil, fmt.Errorf("%s: embeddings not supported", ProviderName)
}
