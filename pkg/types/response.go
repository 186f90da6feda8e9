package types //nolint:revive // package name is intentional

// Usage carries token accounting for a single completion. CachedTokens
// and ReasoningTokens come from provider-specific *_tokens_details
// breakdowns and are left at zero when a provider doesn't report them.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	TotalTokens     int `json:"total_tokens"`
	CachedTokens    int `json:"cached_tokens,omitempty"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// ResponseMetadata carries provenance alongside an LLMResponse.
type ResponseMetadata struct {
	Provider     string         `json:"provider"`
	Role         string         `json:"role,omitempty"`
	CostDetails  map[string]any `json:"cost_details,omitempty"`
	RawResponse  any            `json:"raw_response,omitempty"`
}

// LLMResponse is the canonical, provider-agnostic output of a
// completed (non-streaming) request.
type LLMResponse struct {
	Content      string            `json:"content"`
	Model        string            `json:"model"`
	Usage        Usage             `json:"usage"`
	Cost         *float64          `json:"cost,omitempty"`
	FinishReason string            `json:"finish_reason"`
	FunctionCall *ToolCallFunction `json:"function_call,omitempty"`
	ToolCalls    []ToolCall        `json:"tool_calls,omitempty"`
	Refusal      string            `json:"refusal,omitempty"`
	Logprobs     *Logprobs         `json:"logprobs,omitempty"`
	Metadata     ResponseMetadata  `json:"metadata"`
}

// Logprobs contains log probability information for a completion.
type Logprobs struct {
	Content []LogprobContent `json:"content,omitempty"`
}

// LogprobContent represents log probability for a single token.
type LogprobContent struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
	Bytes   []int   `json:"bytes,omitempty"`
}

// NormalizeToolCalls rewrites a legacy single function_call into the
// tool_calls array shape, generating a stable synthetic id, so
// downstream consumers only ever need to look at ToolCalls (§4.3).
func (r *LLMResponse) NormalizeToolCalls() {
	if r.FunctionCall == nil || len(r.ToolCalls) > 0 {
		return
	}
	r.ToolCalls = []ToolCall{{
		ID:       "call_" + r.FunctionCall.Name,
		Type:     "function",
		Function: *r.FunctionCall,
	}}
}
