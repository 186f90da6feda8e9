// Package openai adapts OpenAI's chat completions and embeddings APIs
// onto the canonical adapter contract via openaicompat, OpenAI being
// the reference implementation other OpenAI-compatible providers
// share.
package openai

import "github.com/exrt/exllm/internal/adapter/openaicompat"

// ProviderName is the identifier for this provider.
const ProviderName = "openai"

// DefaultBaseURL is the default OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

var info = openaicompat.Info{
	Name:              ProviderName,
	DefaultBaseURL:    DefaultBaseURL,
	SupportsEmbedding: true,
	ModelPrefixes:     []string{"gpt-", "o1", "o3", "o4", "chatgpt-", "text-embedding-"},
}

// New returns the OpenAI adapter.
func New() *openaicompat.Adapter {
	return openaicompat.New(info)
}
