// Package openrouter adapts OpenRouter's OpenAI-compatible unified
// inference API.
package openrouter

import "github.com/exrt/exllm/internal/adapter/openaicompat"

// ProviderName is the identifier for this provider.
const ProviderName = "openrouter"

// DefaultBaseURL is the default OpenRouter API endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

var info = openaicompat.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	ModelPrefixes:  []string{"openai/", "anthropic/", "google/", "meta-llama/", "mistralai/"},
}

// New returns the OpenRouter adapter.
func New() *openaicompat.Adapter {
	return openaicompat.New(info)
}
