// Package xai adapts xAI's OpenAI-compatible Grok inference API.
package xai

import "github.com/exrt/exllm/internal/adapter/openaicompat"

// ProviderName is the identifier for this provider.
const ProviderName = "xai"

// DefaultBaseURL is the default xAI API endpoint.
const DefaultBaseURL = "https://api.x.ai/v1"

var info = openaicompat.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	ModelPrefixes:  []string{"grok-"},
}

// New returns the xAI adapter.
func New() *openaicompat.Adapter {
	return openaicompat.New(info)
}
