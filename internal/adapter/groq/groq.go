// Package groq adapts Groq's OpenAI-compatible inference API.
package groq

import "github.com/exrt/exllm/internal/adapter/openaicompat"

// ProviderName is the identifier for this provider.
const ProviderName = "groq"

// DefaultBaseURL is the default Groq API endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

var info = openaicompat.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	ModelPrefixes:  []string{"llama", "mixtral", "gemma"},
}

// New returns the Groq adapter.
func New() *openaicompat.Adapter {
	return openaicompat.New(info)
}
