// Package types defines the core data structures carried through the
// ExLLM pipeline: Request, Message, LLMResponse, StreamChunk, and the
// supporting capability and tool-call shapes.
package types //nolint:revive // package name is intentional

import "github.com/goccy/go-json"

// RequestState tracks a Request's position in the pipeline. It advances
// monotonically: pending -> executing -> (streaming|completed|error).
type RequestState string

const (
	StatePending   RequestState = "pending"
	StateExecuting RequestState = "executing"
	StateStreaming RequestState = "streaming"
	StateCompleted RequestState = "completed"
	StateError     RequestState = "error"
)

// PlugError records a single halt reported by a plug.
type PlugError struct {
	Plug    string `json:"plug"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Request is the single mutable object carried through the pipeline.
// Every plug receives one and returns one; nothing else is threaded
// through Pipeline.Run.
type Request struct {
	ID       string
	Provider string
	Messages []Message

	// Options holds caller-supplied, recognized option values and is
	// immutable after the pipeline starts except by prepare plugs that
	// move recognized keys into Config.
	Options Options

	// Config is populated by FetchConfiguration: api_key, base_url,
	// default model, timeouts, retry knobs, stream_callback.
	Config Options

	// Assigns is free-form scratch space plugs use to pass intermediate
	// values (request_url, request_body, request_headers, http_response,
	// model, provider_type, aws_region, token_stream, response_stream,
	// llm_response, ...).
	Assigns map[string]any

	State  RequestState
	Errors []PlugError
	Halted bool
	Result *LLMResponse
}

// NewRequest builds a pending Request for the given provider and
// messages. Options/Config/Assigns start empty, never nil, so plugs can
// write into them unconditionally.
func NewRequest(id, provider string, messages []Message, options map[string]any) *Request {
	if options == nil {
		options = map[string]any{}
	}
	return &Request{
		ID:       id,
		Provider: provider,
		Messages: messages,
		Options:  Options{values: options},
		Config:   Options{values: map[string]any{}},
		Assigns:  map[string]any{},
		State:    StatePending,
	}
}

// Halt marks the request halted without recording an error, e.g. once a
// provider adapter has produced a terminal result.
func (r *Request) Halt() {
	r.Halted = true
}

// HaltWithError appends a PlugError, sets state to error, and halts the
// request. Per §4.1's error policy this is the only way a plug may
// terminate the pipeline abnormally; it never panics across the plug
// boundary.
func (r *Request) HaltWithError(plug, reason, message string) *Request {
	r.Errors = append(r.Errors, PlugError{Plug: plug, Reason: reason, Message: message})
	r.State = StateError
	r.Halted = true
	return r
}

// Assign sets a key in Assigns.
func (r *Request) Assign(key string, value any) {
	if r.Assigns == nil {
		r.Assigns = map[string]any{}
	}
	r.Assigns[key] = value
}

// AssignValue reads a key from Assigns.
func (r *Request) AssignValue(key string) (any, bool) {
	v, ok := r.Assigns[key]
	return v, ok
}

// Options is a typed accessor over a map[string]any so unrecognized
// keys still round-trip while the recognized ones (§6) get helper
// methods with the right zero-value defaults.
type Options struct {
	values map[string]any
}

// NewOptions wraps a raw map as Options.
func NewOptions(values map[string]any) Options {
	if values == nil {
		values = map[string]any{}
	}
	return Options{values: values}
}

// Raw exposes the underlying map, e.g. for a prepare plug moving keys
// between Options and Config.
func (o Options) Raw() map[string]any { return o.values }

// Get returns the raw value for key.
func (o Options) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Set writes key into the underlying map.
func (o *Options) Set(key string, value any) {
	if o.values == nil {
		o.values = map[string]any{}
	}
	o.values[key] = value
}

// Delete removes key from the underlying map.
func (o *Options) Delete(key string) {
	delete(o.values, key)
}

func (o Options) str(key string) (string, bool) {
	v, ok := o.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (o Options) number(key string) (float64, bool) {
	switch v := o.values[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Model returns the "model" option, if set.
func (o Options) Model() (string, bool) { return o.str("model") }

// Temperature returns the "temperature" option, if set.
func (o Options) Temperature() (float64, bool) { return o.number("temperature") }

// MaxTokens returns the "max_tokens" option, if set.
func (o Options) MaxTokens() (int, bool) {
	f, ok := o.number("max_tokens")
	return int(f), ok
}

// Stream reports whether the "stream" option is true.
func (o Options) Stream() bool {
	v, ok := o.values["stream"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// String returns the string option at key, or def if unset/wrong type.
func (o Options) String(key, def string) string {
	if s, ok := o.str(key); ok {
		return s
	}
	return def
}

// Bool returns the bool option at key, or def if unset/wrong type.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function's name, description, and
// JSON-schema parameters.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents a function call made by the model, normalized
// from either the current tool_calls shape or a legacy function_call.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction contains the function name and raw JSON arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResponseFormat specifies the output format for the model.
type ResponseFormat struct {
	Type string `json:"type"`
}
