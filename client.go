// Package exllm is the public entry point: a thin Client wiring the
// plug pipeline (internal/pipeline, internal/stdpipeline), the adapter
// registry (internal/adapter), and the capability registry
// (internal/capability) into the handful of convenience functions
// named in the external interface — chat, stream, embeddings,
// list_providers, supports?. Per §6 their job stops at "build a
// Request, run the pipeline, return the result"; anything more
// belongs in the packages doing the actual work.
package exllm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/internal/adapter/builtins"
	"github.com/exrt/exllm/internal/breaker"
	"github.com/exrt/exllm/internal/cachecore"
	"github.com/exrt/exllm/internal/capability"
	"github.com/exrt/exllm/internal/config/resolve"
	"github.com/exrt/exllm/internal/httpstack"
	"github.com/exrt/exllm/internal/pipeline"
	"github.com/exrt/exllm/internal/retry"
	"github.com/exrt/exllm/internal/stdpipeline"
	"github.com/exrt/exllm/internal/telemetry"
	"github.com/exrt/exllm/pkg/errors"
	"github.com/exrt/exllm/pkg/types"
)

// Client is the library's single entry point. It owns the adapter and
// capability registries and the assembled pipeline; all state is
// safe for concurrent use once constructed.
type Client struct {
	adapters     *adapter.Registry
	capabilities *capability.Registry
	cache        cachecore.Strategy
	pipeline     pipeline.Pipeline
	logger       *slog.Logger
}

type clientConfig struct {
	adapters     *adapter.Registry
	capabilities *capability.Registry
	cache        cachecore.Strategy
	configSource resolve.Source
	secrets      resolve.SecretProvider
	breakers     *breaker.Registry
	retryPolicy  *retry.Policy
	logger       *slog.Logger
	timeout      time.Duration
	debug        bool
}

// Option configures a Client at construction time.
type Option func(*clientConfig)

// WithAdapters overrides the default builtin adapter registry, e.g. to
// add RegisterBedrock or RegisterLocal results.
func WithAdapters(reg *adapter.Registry) Option {
	return func(c *clientConfig) { c.adapters = reg }
}

// WithCapabilities overrides the default embedded capability table.
func WithCapabilities(reg *capability.Registry) Option {
	return func(c *clientConfig) { c.capabilities = reg }
}

// WithCache installs a cache strategy in front of chat calls. No cache
// is installed by default.
func WithCache(strategy cachecore.Strategy) Option {
	return func(c *clientConfig) { c.cache = strategy }
}

// WithConfigSource installs the static configuration tier consulted by
// FetchConfiguration ahead of environment variables.
func WithConfigSource(src resolve.Source) Option {
	return func(c *clientConfig) { c.configSource = src }
}

// WithSecrets installs the secret-tier provider consulted ahead of the
// static config source, e.g. a Vault-backed resolve.SecretProvider.
func WithSecrets(secrets resolve.SecretProvider) Option {
	return func(c *clientConfig) { c.secrets = secrets }
}

// WithBreakers overrides the default circuit breaker registry.
func WithBreakers(reg *breaker.Registry) Option {
	return func(c *clientConfig) { c.breakers = reg }
}

// WithRetryPolicy overrides the default retry policy applied to
// non-streaming HTTP calls.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(c *clientConfig) { c.retryPolicy = p }
}

// WithLogger overrides the default slog.Logger used for pipeline and
// transport logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithTimeout overrides the default 60s per-request timeout (ignored
// for streaming requests, which run until the stream closes).
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithDebug turns on verbose request/response logging in the HTTP
// stack's logger layer.
func WithDebug(debug bool) Option {
	return func(c *clientConfig) { c.debug = debug }
}

// New builds a Client. With no options, it registers every HTTP-backed
// builtin adapter (Bedrock and the local runner are opt-in via
// WithAdapters, since both need extra setup: AWS credentials and an
// application-supplied local.Generator respectively) and resolves
// configuration purely from the environment and built-in defaults.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		adapters:     builtins.NewRegistry(),
		capabilities: capability.NewRegistry(),
		breakers:     breaker.NewRegistry(breaker.DefaultConfig()),
		retryPolicy:  retry.DefaultPolicy(),
		logger:       slog.Default(),
		timeout:      60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	rec := telemetry.New(cfg.logger)
	deps := stdpipeline.Deps{
		Adapters:    cfg.adapters,
		Config:      cfg.configSource,
		Secrets:     cfg.secrets,
		Breakers:    cfg.breakers,
		RetryPolicy: cfg.retryPolicy,
		Telemetry:   rec,
		Logger:      cfg.logger,
		Timeout:     cfg.timeout,
		Debug:       cfg.debug,
	}

	return &Client{
		adapters:     cfg.adapters,
		capabilities: cfg.capabilities,
		cache:        cfg.cache,
		pipeline:     stdpipeline.Build(deps),
		logger:       cfg.logger,
	}, nil
}

// Chat runs a single non-streaming completion against provider.
func (c *Client) Chat(ctx context.Context, provider string, messages []types.Message, options map[string]any) (*types.LLMResponse, error) {
	options = withStream(options, false)
	req := types.NewRequest(uuid.NewString(), provider, messages, options)

	if c.cache != nil {
		key := cachecore.KeyFor(cachecore.KeyParams{Provider: provider, Model: req.Options.String("model", ""), Messages: messages, Options: options})
		v, _, err := c.cache.WithCache(ctx, key, cachecore.Options{}, func(ctx context.Context) (any, error) {
			return c.runChat(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		return v.(*types.LLMResponse), nil
	}
	return c.runChat(ctx, req)
}

func (c *Client) runChat(ctx context.Context, req *types.Request) (*types.LLMResponse, error) {
	out := pipeline.Run(pipeline.NewContext(ctx, c.logger), c.pipeline, req)
	if out.Halted {
		return nil, haltError(out)
	}
	return out.Result, nil
}

// Stream runs a streaming completion against provider, returning the
// channel of StreamChunk produced by the pipeline's Execute step. The
// channel is closed after its terminal chunk or on ctx cancellation.
func (c *Client) Stream(ctx context.Context, provider string, messages []types.Message, options map[string]any) (<-chan types.StreamChunk, error) {
	options = withStream(options, true)
	req := types.NewRequest(uuid.NewString(), provider, messages, options)

	out := pipeline.Run(pipeline.NewContext(ctx, c.logger), c.pipeline, req)
	if out.Halted {
		return nil, haltError(out)
	}
	chAny, ok := out.AssignValue("response_stream")
	if !ok {
		return nil, errors.New(errors.KindException, "pipeline completed without producing a response_stream")
	}
	ch, ok := chAny.(<-chan types.StreamChunk)
	if !ok {
		return nil, errors.New(errors.KindException, "response_stream assign had an unexpected type")
	}
	return ch, nil
}

// Embeddings runs an embedding request against provider. Embeddings
// bypass the chat pipeline (§4.2's ten steps describe chat/completion
// execution only) and go straight through the matching adapter's
// BuildEmbeddingRequest/ParseEmbeddingResponse pair. api_key and
// base_url come from the <PROVIDER>_API_KEY and <PROVIDER>_BASE_URL
// environment variables only: unlike FetchConfiguration, the explicit,
// secret-provider and static-source tiers are not consulted.
func (c *Client) Embeddings(ctx context.Context, provider string, embReq *types.EmbeddingRequest, options map[string]any) (*types.EmbeddingResponse, error) {
	a, ok := c.adapters.Get(provider)
	if !ok {
		return nil, errors.Newf(errors.KindValidation, "unregistered provider %q", provider)
	}
	if !a.SupportsEmbedding() {
		return nil, errors.Newf(errors.KindValidation, "provider %q does not support embeddings", provider)
	}

	req := types.NewRequest(uuid.NewString(), provider, nil, options)
	envPrefix := envPrefixUpper(provider)
	apiKey := resolve.String(ctx, nil, nil, "", nil, provider+".api_key", envPrefix+"_API_KEY", "")
	req.Config.Set("api_key", apiKey)
	if v := resolve.String(ctx, nil, nil, "", nil, provider+".base_url", envPrefix+"_BASE_URL", ""); v != "" {
		req.Config.Set("base_url", v)
	}

	httpReq, err := a.BuildEmbeddingRequest(ctx, req, embReq)
	if err != nil {
		return nil, errors.Newf(errors.KindValidation, "build embedding request: %v", err).WithProvider(provider, embReq.Model)
	}

	transport := httpstack.Build(httpstack.Config{Timeout: 60 * time.Second, Logger: c.logger}, httpstack.NewTransport())
	client := &http.Client{Transport: transport, Timeout: 60 * time.Second}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, errors.Newf(errors.KindTransport, "embeddings request: %v", err).WithProvider(provider, embReq.Model)
	}
	if resp.StatusCode >= 400 {
		return nil, a.MapError(resp.StatusCode, readAndClose(resp))
	}
	out, err := a.ParseEmbeddingResponse(resp)
	resp.Body.Close()
	if err != nil {
		return nil, errors.Newf(errors.KindProtocol, "parse embedding response: %v", err).WithProvider(provider, embReq.Model)
	}
	return out, nil
}

// ListProviders returns every provider tag known to the capability
// registry, sorted.
//
// ListModels is intentionally not implemented: CapabilityRecord (§4.13)
// carries no per-model list, and model-pricing tables are explicitly
// out of scope (see DESIGN.md).
func (c *Client) ListProviders() []string {
	return c.capabilities.ListProviders()
}

// Supports reports whether provider supports the named feature or
// endpoint, per the capability registry.
func (c *Client) Supports(provider, featureOrEndpoint string) bool {
	return c.capabilities.Supports(provider, featureOrEndpoint)
}

// Capabilities exposes the full capability record for provider.
func (c *Client) Capabilities(provider string) (types.CapabilityRecord, bool) {
	return c.capabilities.Get(provider)
}

func withStream(options map[string]any, stream bool) map[string]any {
	out := make(map[string]any, len(options)+1)
	for k, v := range options {
		out[k] = v
	}
	out["stream"] = stream
	return out
}

func envPrefixUpper(provider string) string {
	out := make([]byte, len(provider))
	for i := 0; i < len(provider); i++ {
		b := provider[i]
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

func readAndClose(resp *http.Response) []byte {
	defer resp.Body.Close()
	buf := make([]byte, 0, 512)
	tmp := make([]byte, 512)
	for {
		n, err := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf
}

func haltError(req *types.Request) error {
	if len(req.Errors) == 0 {
		return errors.New(errors.KindException, "pipeline halted without recording an error")
	}
	last := req.Errors[len(req.Errors)-1]
	return errors.New(errors.Kind(last.Reason), fmt.Sprintf("%s: %s", last.Plug, last.Message)).WithPlug(last.Plug)
}
