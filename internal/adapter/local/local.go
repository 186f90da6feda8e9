// Package local adapts an in-process model runner onto the canonical
// adapter contract. Unlike every other provider in internal/adapter/*,
// "local" never leaves the process: there is no wire format to build,
// sign, or parse, so BuildHTTPClient and the HTTP Execute variants are
// skipped entirely (§4.2 step 6/8) and the pipeline drives this adapter
// through adapter.LocalRunner instead.
//
// The runner itself is supplied by the embedding application (e.g. a
// bound llama.cpp/ggml process, an in-process ONNX session, or a test
// double) and plugged in via Generator, the same way a Plug is a named
// callable unit rather than a concrete implementation.
package local

import (
	"context"
	"fmt"
	"net/http"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/pkg/types"
)

// ProviderName is the identifier for this provider.
const ProviderName = "local"

// Generator is the in-process model runner. Implementations own
// whatever process/runtime actually produces tokens (a child process,
// an embedded runtime, a test double); the adapter only shapes the
// canonical Request/Response/StreamChunk around it.
type Generator interface {
	// Generate drives the model to completion and returns the full
	// response.
	Generate(ctx context.Context, req *types.Request) (*types.LLMResponse, error)

	// GenerateStream drives the model and returns a channel of
	// incremental chunks; the channel is closed after a terminal chunk
	// (FinishReason set) or when ctx is cancelled, whichever comes
	// first.
	GenerateStream(ctx context.Context, req *types.Request) (<-chan types.StreamChunk, error)

	// SupportsModel reports whether this generator can serve model.
	SupportsModel(model string) bool
}

// Adapter implements adapter.Adapter and adapter.LocalRunner by
// delegating to a Generator.
type Adapter struct {
	gen Generator
}

// New returns a local adapter wrapping gen.
func New(gen Generator) *Adapter {
	return &Adapter{gen: gen}
}

var (
	_ adapter.Adapter     = (*Adapter)(nil)
	_ adapter.LocalRunner = (*Adapter)(nil)
)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return ProviderName }

// SupportsModel implements adapter.Adapter.
func (a *Adapter) SupportsModel(model string) bool {
	return a.gen.SupportsModel(model)
}

// SupportsEmbedding implements adapter.Adapter. The in-process runner
// contract only covers chat/completion token generation.
func (a *Adapter) SupportsEmbedding() bool { return false }

// Run implements adapter.LocalRunner.
func (a *Adapter) Run(ctx context.Context, req *types.Request) (*types.LLMResponse, error) {
	return a.gen.Generate(ctx, req)
}

// RunStream implements adapter.LocalRunner.
func (a *Adapter) RunStream(ctx context.Context, req *types.Request) (<-chan types.StreamChunk, error) {
	return a.gen.GenerateStream(ctx, req)
}

// BuildRequest implements adapter.Adapter for registry uniformity. The
// pipeline never calls this for a provider tagged "local" — it
// type-asserts to adapter.LocalRunner instead — so reaching this is a
// wiring bug upstream.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	return nil, fmt.Errorf("%s: runs in-process; BuildRequest is not used, see adapter.LocalRunner", ProviderName)
}

// ParseResponse implements adapter.Adapter. See BuildRequest.
func (a *Adapter) ParseResponse(resp *http.Response) (*types.LLMResponse, error) {
	return nil, fmt.Errorf("%s: runs in-process; ParseResponse is not used, see adapter.LocalRunner", ProviderName)
}

// ParseStreamChunk implements adapter.Adapter. See BuildRequest.
func (a *Adapter) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	return nil, fmt.Errorf("%s: runs in-process; ParseStreamChunk is not used, see adapter.LocalRunner", ProviderName)
}

// MapError implements adapter.Adapter. Generator implementations
// return plain Go errors from Generate/GenerateStream directly; there
// is no HTTP status to classify.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	return fmt.Errorf("%s: runs in-process; has no HTTP status to map", ProviderName)
}

// BuildEmbeddingRequest implements adapter.Adapter.
func (a *Adapter) BuildEmbeddingRequest(ctx context.Context, req *types.Request, embReq *types.EmbeddingRequest) (*http.Request, error) {
	return nil, fmt.Errorf("%s: embeddings not supported by the local runner", ProviderName)
}

// ParseEmbeddingResponse implements adapter.Adapter.
func (a *Adapter) ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error) {
	return nil, fmt.Errorf("%s: embeddings not supported by the local runner", ProviderName)
}
