// Package bedrock adapts AWS Bedrock's invoke / invoke-with-response-stream
// APIs onto the canonical adapter contract. Bedrock has no single wire
// format: the request/response payload shape depends on the invoked
// model family, so this adapter dispatches on the model ID prefix
// (anthropic.claude-3* vs meta.llama3*) the way the teacher's
// constructPayload did. SigV4 signing uses the same aws-sdk-go-v2
// pieces as the teacher; AWS EventStream framing itself is decoded
// upstream by internal/decode, so ParseStreamChunk here only handles
// the per-model JSON payload shape.
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/goccy/go-json"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/pkg/types"
)

// ProviderName is the identifier for this provider.
const ProviderName = "bedrock"

const defaultClaudeMaxTokens = 2048
const defaultLlamaMaxGenLen = 512

// Adapter implements adapter.Adapter for AWS Bedrock.
type Adapter struct {
	cfg aws.Config
}

// New returns a Bedrock adapter using the given AWS config (region,
// credentials provider).
func New(cfg aws.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// NewDefault loads the AWS config from the environment/shared profile,
// the same resolution chain the AWS SDK uses for any other client.
func NewDefault(ctx context.Context) (*Adapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return New(cfg), nil
}

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return ProviderName }

// SupportsModel implements adapter.Adapter. Bedrock hosts many model
// families under one API; any model ID is passed through and left to
// the service to reject.
func (a *Adapter) SupportsModel(model string) bool { return true }

// SupportsEmbedding implements adapter.Adapter. Embeddings (e.g.
// amazon.titan-embed-*) are out of scope for this adapter; Bedrock's
// chat-model invoke surface is what's wired.
func (a *Adapter) SupportsEmbedding() bool { return false }

// BuildRequest implements adapter.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	model := req.Config.String("model", req.Options.String("model", ""))
	payload, err := constructPayload(model, req)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	method := "invoke"
	if req.Options.Stream() {
		method = "invoke-with-response-stream"
	}

	region := req.Config.String("region", a.cfg.Region)
	url := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/%s", region, model, method)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	signer := v4.NewSigner()
	creds, err := a.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	payloadHash := sha256.Sum256(bodyBytes)
	hexHash := hex.EncodeToString(payloadHash[:])
	if err := signer.SignHTTP(ctx, creds, httpReq, hexHash, "bedrock", region, time.Now()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(bodyBytes)), nil
	}
	return httpReq, nil
}

func constructPayload(model string, req *types.Request) (any, error) {
	switch {
	case strings.HasPrefix(model, "anthropic.claude-3"):
		return constructClaude3Payload(req), nil
	case strings.HasPrefix(model, "meta.llama3"):
		return constructLlama3Payload(req), nil
	default:
		return nil, fmt.Errorf("%s: unsupported model family for %s", ProviderName, model)
	}
}

type claude3Payload struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []claude3Message `json:"messages"`
	System           string           `json:"system,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
}

type claude3Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func constructClaude3Payload(req *types.Request) *claude3Payload {
	payload := &claude3Payload{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        defaultClaudeMaxTokens,
	}
	if mt, ok := req.Options.MaxTokens(); ok && mt > 0 {
		payload.MaxTokens = mt
	}
	if t, ok := req.Options.Temperature(); ok {
		payload.Temperature = &t
	}

	for _, m := range req.Messages {
		text := m.PlainText()
		if m.Role == types.RoleSystem {
			payload.System = text
			continue
		}
		payload.Messages = append(payload.Messages, claude3Message{Role: string(m.Role), Content: text})
	}
	return payload
}

type llama3Payload struct {
	Prompt      string   `json:"prompt"`
	MaxGenLen   int      `json:"max_gen_len,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

func constructLlama3Payload(req *types.Request) *llama3Payload {
	var prompt strings.Builder
	prompt.WriteString("<|begin_of_text|>")
	for _, m := range req.Messages {
		fmt.Fprintf(&prompt, "<|start_header_id|>%s<|end_header_id|>\n\n%s<|eot_id|>", m.Role, m.PlainText())
	}
	prompt.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")

	payload := &llama3Payload{Prompt: prompt.String(), MaxGenLen: defaultLlamaMaxGenLen}
	if mt, ok := req.Options.MaxTokens(); ok && mt > 0 {
		payload.MaxGenLen = mt
	}
	if t, ok := req.Options.Temperature(); ok {
		payload.Temperature = &t
	}
	return payload
}

// ParseResponse implements adapter.Adapter. The model family isn't
// known here (the adapter.Adapter interface doesn't pass the
// request), so it's inferred from the response shape, same as the
// teacher's adapter.
func (a *Adapter) ParseResponse(resp *http.Response) (*types.LLMResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var claudeResp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &claudeResp); err == nil && len(claudeResp.Content) > 0 {
		return &types.LLMResponse{
			Content:      claudeResp.Content[0].Text,
			FinishReason: mapClaudeStopReason(claudeResp.StopReason),
			Usage: types.Usage{
				InputTokens:  claudeResp.Usage.InputTokens,
				OutputTokens: claudeResp.Usage.OutputTokens,
				TotalTokens:  claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
			},
			Metadata: types.ResponseMetadata{Provider: ProviderName, Role: "assistant"},
		}, nil
	}

	var llamaResp struct {
		Generation string `json:"generation"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(body, &llamaResp); err == nil && llamaResp.Generation != "" {
		return &types.LLMResponse{
			Content:      llamaResp.Generation,
			FinishReason: mapClaudeStopReason(llamaResp.StopReason),
			Metadata:     types.ResponseMetadata{Provider: ProviderName, Role: "assistant"},
		}, nil
	}

	return nil, fmt.Errorf("%s: unrecognized response format", ProviderName)
}

// mapClaudeStopReason normalizes Bedrock's stop_reason into finish_reason.
// Unlike internal/adapter/anthropic's mapStopReason (which folds end_turn
// and stop_sequence into "stop" for the direct Anthropic API), Bedrock
// passes the wire value through unchanged except for "max_tokens", which
// becomes "length" to match the finish_reason convention every other
// adapter uses for a length-limited completion. An empty or absent
// stop_reason (e.g. a Llama3 response without one) maps to "stop".
func mapClaudeStopReason(reason string) string {
	switch reason {
	case "":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

// ParseStreamChunk implements adapter.Adapter. data is one already
// EventStream-decoded JSON payload.
func (a *Adapter) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "content_block_delta":
		delta, _ := event["delta"].(map[string]any)
		text, _ := delta["text"].(string)
		return &types.StreamChunk{Content: text}, nil
	case "message_delta":
		delta, _ := event["delta"].(map[string]any)
		stopReason, _ := delta["stop_reason"].(string)
		if stopReason == "" {
			return nil, nil
		}
		return &types.StreamChunk{FinishReason: mapClaudeStopReason(stopReason)}, nil
	case "message_stop":
		return &types.StreamChunk{FinishReason: "stop"}, nil
	}

	if gen, ok := event["generation"].(string); ok {
		chunk := &types.StreamChunk{Content: gen}
		if stopReason, ok := event["stop_reason"].(string); ok && stopReason != "" {
			chunk.FinishReason = "stop"
		}
		return chunk, nil
	}

	return nil, nil
}

// MapError implements adapter.Adapter.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	return adapter.MapHTTPStatus(ProviderName, "", statusCode, string(body))
}

// BuildEmbeddingRequest implements adapter.Adapter.
func (a *Adapter) BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error) {
	return nil, fmt.Errorf("%s: embeddings not supported by this adapter", ProviderName)
}

// ParseEmbeddingResponse implements adapter.Adapter.
func (a *Adapter) ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error) {
	return nil, fmt.Errorf("%s: embeddings not supported by this adapter", ProviderName)
}
