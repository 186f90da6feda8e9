// Package adapter defines the provider adapter contract (C14): the
// seam between the canonical pipeline types (types.Request,
// types.LLMResponse, types.StreamChunk) and a specific provider's wire
// format. Each provider package in internal/adapter/* implements
// Adapter; internal/stdpipeline's HTTP-facing plugs call through it
// without knowing which provider they're talking to.
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/exrt/exllm/pkg/errors"
	"github.com/exrt/exllm/pkg/types"
)

// Adapter builds provider-specific HTTP requests from a Request and
// parses provider-specific HTTP responses back into the canonical
// response/chunk shapes. It mirrors pkg/provider.Provider's shape but
// targets the pipeline's Request/LLMResponse contract instead of a
// standalone ChatRequest/ChatResponse pair, so a single adapter call
// can read directly from Request.Config (api_key, base_url, ...) and
// Request.Options (temperature, tools, ...) without an intermediate
// struct.
type Adapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// SupportsModel reports whether model is one this adapter recognizes
	// by name or prefix.
	SupportsModel(model string) bool

	// BuildRequest transforms req into a provider-specific HTTP request.
	BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error)

	// ParseResponse transforms a non-streaming HTTP response into the
	// canonical LLMResponse.
	ParseResponse(resp *http.Response) (*types.LLMResponse, error)

	// ParseStreamChunk parses one decoded wire event into a StreamChunk.
	// Returns nil, nil for keep-alives and events carrying no content.
	ParseStreamChunk(data []byte) (*types.StreamChunk, error)

	// MapError converts a provider error response into a classified
	// *errors.Error.
	MapError(statusCode int, body []byte) error

	// SupportsEmbedding reports whether this adapter handles embedding
	// requests.
	SupportsEmbedding() bool

	// BuildEmbeddingRequest transforms an EmbeddingRequest into a
	// provider-specific HTTP request. req carries resolved Config
	// (api_key, base_url); embReq carries the embedding payload.
	BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error)

	// ParseEmbeddingResponse transforms a provider's embedding response
	// into the canonical EmbeddingResponse.
	ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error)
}

// LocalRunner is implemented by adapters that execute in-process
// instead of round-tripping an HTTP request (the pipeline's
// ExecuteLocal step, §4.2 step 8). BuildHTTPClient and the HTTP-shaped
// Execute variants are skipped entirely for these providers; the
// pipeline type-asserts the registered Adapter to LocalRunner and
// calls Run/RunStream directly. An adapter package that implements
// LocalRunner still satisfies Adapter so it can share one Registry;
// its BuildRequest/ParseResponse/etc. are never invoked and return an
// error saying so.
type LocalRunner interface {
	// Run drives the in-process model synchronously and returns the
	// completed response.
	Run(ctx context.Context, req *types.Request) (*types.LLMResponse, error)

	// RunStream drives the in-process model and returns a channel of
	// StreamChunk, closed after the terminal chunk (or on ctx
	// cancellation). This is the "in-process model runner producing a
	// token iterator" the pipeline's ExecuteLocal step wraps.
	RunStream(ctx context.Context, req *types.Request) (<-chan types.StreamChunk, error)
}

// Registry resolves an Adapter by provider name, guarded by a mutex so
// adapters can be registered from concurrent init()s without a race.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for name.
func (r *Registry) Register(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
}

// Get returns the adapter registered for name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// List returns the registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// MapHTTPStatus classifies a provider HTTP status/body pair into a
// standardized *errors.Error. Shared by every adapter's MapError so the
// status-to-kind mapping (§4.11) stays in one place.
func MapHTTPStatus(providerName, model string, statusCode int, message string) *errors.Error {
	var kind errors.Kind
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = errors.KindConfiguration
	case http.StatusTooManyRequests:
		kind = errors.KindHTTP
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = errors.KindValidation
	case http.StatusNotFound:
		kind = errors.KindNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = errors.KindTransport
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		kind = errors.KindHTTP
	default:
		kind = errors.KindProvider
	}

	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusGatewayTimeout ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway

	if message == "" {
		message = fmt.Sprintf("%s returned status %d", providerName, statusCode)
	}

	return errors.New(kind, message).
		WithProvider(providerName, model).
		WithStatus(statusCode).
		WithRetryable(retryable)
}
