package openaicompat

import "github.com/exrt/exllm/pkg/types"

// wireRequest is the OpenAI chat completions request body. Messages
// reuses types.Message directly since its MarshalJSON already emits
// the OpenAI {role, content, tool_calls, ...} shape.
type wireRequest struct {
	Model            string                `json:"model"`
	Messages         []types.Message       `json:"messages"`
	Temperature      *float64              `json:"temperature,omitempty"`
	TopP             *float64              `json:"top_p,omitempty"`
	MaxTokens        *int                  `json:"max_tokens,omitempty"`
	Stream           bool                  `json:"stream,omitempty"`
	Stop             []string              `json:"stop,omitempty"`
	Tools            []types.Tool          `json:"tools,omitempty"`
	ToolChoice       any                   `json:"tool_choice,omitempty"`
	ResponseFormat   *types.ResponseFormat `json:"response_format,omitempty"`
	Seed             *int                  `json:"seed,omitempty"`
	FrequencyPenalty *float64              `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64              `json:"presence_penalty,omitempty"`
	N                *int                  `json:"n,omitempty"`
	User             string                `json:"user,omitempty"`
}

type wireUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens     int `json:"completion_tokens"`
	TotalTokens          int `json:"total_tokens"`
	PromptTokensDetails  *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details,omitempty"`
}

func (u wireUsage) toUsage() types.Usage {
	usage := types.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return usage
}

type wireResponseMessage struct {
	Role         string                   `json:"role"`
	Content      string                   `json:"content"`
	Refusal      string                   `json:"refusal,omitempty"`
	ToolCalls    []types.ToolCall         `json:"tool_calls,omitempty"`
	FunctionCall *types.ToolCallFunction  `json:"function_call,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      wireResponseMessage `json:"message"`
		FinishReason string              `json:"finish_reason"`
		Logprobs     *types.Logprobs     `json:"logprobs,omitempty"`
	} `json:"choices"`
	Usage wireUsage `json:"usage"`
}

type wireStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string           `json:"content"`
			ToolCalls []types.ToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage,omitempty"`
}

type wireErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
