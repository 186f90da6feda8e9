// Package perplexity adapts Perplexity AI's OpenAI-compatible
// search-augmented inference API.
package perplexity

import "github.com/exrt/exllm/internal/adapter/openaicompat"

// ProviderName is the identifier for this provider.
const ProviderName = "perplexity"

// DefaultBaseURL is the default Perplexity API endpoint.
const DefaultBaseURL = "https://api.perplexity.ai"

var info = openaicompat.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	ModelPrefixes:  []string{"llama-3.1-sonar", "sonar", "pplx-"},
}

// New returns the Perplexity adapter.
func New() *openaicompat.Adapter {
	return openaicompat.New(info)
}
