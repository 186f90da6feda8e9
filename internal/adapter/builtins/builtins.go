// Package builtins wires every shipped provider adapter into an
// adapter.Registry in one place, mirroring the teacher's
// providers.RegisterBuiltins/init() pattern but targeting the new
// adapter.Adapter contract. It lives in its own package (rather than
// internal/adapter itself) because registering concrete adapters here
// would otherwise create an import cycle: each adapter package already
// imports internal/adapter for the Adapter/LocalRunner interfaces and
// MapHTTPStatus.
package builtins

import (
	"context"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/internal/adapter/anthropic"
	"github.com/exrt/exllm/internal/adapter/bedrock"
	"github.com/exrt/exllm/internal/adapter/gemini"
	"github.com/exrt/exllm/internal/adapter/groq"
	"github.com/exrt/exllm/internal/adapter/local"
	"github.com/exrt/exllm/internal/adapter/mistral"
	"github.com/exrt/exllm/internal/adapter/ollama"
	"github.com/exrt/exllm/internal/adapter/openai"
	"github.com/exrt/exllm/internal/adapter/openrouter"
	"github.com/exrt/exllm/internal/adapter/perplexity"
	"github.com/exrt/exllm/internal/adapter/xai"
)

// Register adds the nine HTTP-backed adapters that need no extra setup
// (openai, groq, mistral, openrouter, perplexity, xai, ollama,
// anthropic, gemini) to reg. Bedrock (see RegisterBedrock) and "local",
// which needs an application-supplied Generator, are not added. Safe to call more than once; later registrations overwrite
// earlier ones for the same name.
func Register(reg *adapter.Registry) {
	reg.Register(openai.ProviderName, openai.New())
	reg.Register(groq.ProviderName, groq.New())
	reg.Register(mistral.ProviderName, mistral.New())
	reg.Register(openrouter.ProviderName, openrouter.New())
	reg.Register(perplexity.ProviderName, perplexity.New())
	reg.Register(xai.ProviderName, xai.New())
	reg.Register(ollama.ProviderName, ollama.New())
	reg.Register(anthropic.ProviderName, anthropic.New())
	reg.Register(gemini.ProviderName, gemini.New())
}

// RegisterBedrock loads AWS config from the environment and registers
// the Bedrock adapter. Split out from Register because it can fail
// (no AWS credentials resolvable) and does network-adjacent work
// (STS/IMDS lookups via the SDK's credential chain) that a pure,
// always-succeeds Register should not do.
func RegisterBedrock(ctx context.Context, reg *adapter.Registry) error {
	a, err := bedrock.NewDefault(ctx)
	if err != nil {
		return err
	}
	reg.Register(bedrock.ProviderName, a)
	return nil
}

// RegisterLocal registers the in-process adapter wrapping gen under
// the "local" provider tag. Left out of Register because the
// Generator is supplied by the embedding application, not discoverable
// from the environment.
func RegisterLocal(reg *adapter.Registry, gen local.Generator) {
	reg.Register(local.ProviderName, local.New(gen))
}

// NewRegistry builds a Registry with every HTTP-backed adapter
// pre-registered, the convenience form of Register for callers that
// don't need Bedrock or a local runner.
func NewRegistry() *adapter.Registry {
	reg := adapter.NewRegistry()
	Register(reg)
	return reg
}
