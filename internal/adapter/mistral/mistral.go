// Package mistral adapts Mistral AI's OpenAI-compatible inference API.
package mistral

import "github.com/exrt/exllm/internal/adapter/openaicompat"

// ProviderName is the identifier for this provider.
const ProviderName = "mistral"

// DefaultBaseURL is the default Mistral AI API endpoint.
const DefaultBaseURL = "https://api.mistral.ai/v1"

var info = openaicompat.Info{
	Name:              ProviderName,
	DefaultBaseURL:    DefaultBaseURL,
	SupportsEmbedding: true,
	ModelPrefixes:     []string{"mistral-", "open-mistral", "open-mixtral", "codestral"},
}

// New returns the Mistral adapter.
func New() *openaicompat.Adapter {
	return openaicompat.New(info)
}
