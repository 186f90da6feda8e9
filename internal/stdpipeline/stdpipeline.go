// Package stdpipeline assembles the Standard Provider Pipeline (§4.2):
// the canonical ten-step plug order every chat/embedding call runs
// through, wired to a concrete adapter.Registry, httpstack transport,
// breaker.Registry, and retry.Policy. Building (Build) and running
// (pipeline.Run) stay separate, per §4.1, so the assembled Pipeline can
// be introspected or substituted in tests without executing it.
package stdpipeline

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/exrt/exllm/internal/adapter"
	"github.com/exrt/exllm/internal/breaker"
	"github.com/exrt/exllm/internal/config/resolve"
	"github.com/exrt/exllm/internal/decode"
	"github.com/exrt/exllm/internal/httpstack"
	"github.com/exrt/exllm/internal/pipeline"
	"github.com/exrt/exllm/internal/retry"
	"github.com/exrt/exllm/internal/telemetry"
	exllmerrors "github.com/exrt/exllm/pkg/errors"
	"github.com/exrt/exllm/pkg/types"
)

// Deps bundles everything the standard pipeline needs to resolve
// configuration, reach the network, and report telemetry. Only
// Adapters is required; the rest degrade gracefully when nil (no
// circuit breaker, no retry, no secret tier, a default logger).
type Deps struct {
	Adapters    *adapter.Registry
	Config      resolve.Source
	Secrets     resolve.SecretProvider
	Breakers    *breaker.Registry
	RetryPolicy *retry.Policy
	Telemetry   *telemetry.Recorder
	Logger      *slog.Logger
	Timeout     time.Duration
	Debug       bool
}

// Build assembles the standard pipeline (nine plugs; AuthRequest has no
// plug of its own, see execute) wrapped in a TelemetryMiddleware (§4.2's final line: "All of the above is wrapped
// by a TelemetryMiddleware plug emitting [ex_llm, provider, execution]
// span events").
func Build(deps Deps) pipeline.Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	inner := pipeline.New(
		validateProvider(deps),
		validateMessages(),
		fetchConfiguration(deps),
		pipeline.ConditionalPlug{
			PlugName:  "PrepareStreaming",
			Predicate: func(r *types.Request) bool { return r.Options.Stream() },
			IfTrue:    prepareStreaming(),
		},
		buildRequest(deps),
		buildHTTPClient(deps),
		execute(deps),
		pipeline.ConditionalPlug{
			PlugName:  "StreamParseResponse",
			Predicate: hasRawStream,
			IfTrue:    streamParseResponse(deps),
		},
		parseResponse(deps),
	)

	return pipeline.New(pipeline.MiddlewarePlug{
		PlugName: "TelemetryMiddleware",
		Before: func(ctx pipeline.Context, r *types.Request) *types.Request {
			emit(deps, "ex_llm.provider.execution.start", r, nil)
			return r
		},
		Inner: inner,
		After: func(ctx pipeline.Context, r *types.Request) *types.Request {
			fields := map[string]any{"state": string(r.State)}
			if r.Halted {
				fields["halted"] = true
			}
			emit(deps, "ex_llm.provider.execution.stop", r, fields)
			return r
		},
	})
}

func emit(deps Deps, event string, r *types.Request, extra map[string]any) {
	if deps.Telemetry == nil {
		return
	}
	fields := map[string]any{"provider": r.Provider, "request_id": r.ID}
	for k, v := range extra {
		fields[k] = v
	}
	deps.Telemetry.Emit(event, fields)
}

// 1. ValidateProvider
func validateProvider(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "ValidateProvider", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		if _, ok := deps.Adapters.Get(req.Provider); !ok {
			return req.HaltWithError("ValidateProvider", "validation", fmt.Sprintf("unregistered provider %q", req.Provider))
		}
		return req
	}}
}

// 2. ValidateMessages
func validateMessages() pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "ValidateMessages", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		if len(req.Messages) == 0 {
			return req.HaltWithError("ValidateMessages", "validation", "at least one message is required")
		}
		for i, m := range req.Messages {
			switch m.Role {
			case types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleTool:
			default:
				return req.HaltWithError("ValidateMessages", "validation", fmt.Sprintf("message %d: unknown role %q", i, m.Role))
			}
			if m.PlainText() == "" && len(m.ToolCalls) == 0 {
				return req.HaltWithError("ValidateMessages", "validation", fmt.Sprintf("message %d: empty content", i))
			}
		}
		return req
	}}
}

// 3. FetchConfiguration resolves api_key/base_url/model through resolve:
// explicit option > static config > env > default, with the secret
// provider consulted right after the explicit option for api_key only.
// timeout is Deps.Timeout (60s when unset).
func fetchConfiguration(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "FetchConfiguration", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		provider := req.Provider
		envPrefix := envPrefixFor(provider)

		apiKeyOpt := optString(req, "api_key")
		apiKey := resolve.String(ctx.Context, apiKeyOpt, deps.Secrets, envPrefix+"/api_key", deps.Config, provider+".api_key", envPrefix+"_API_KEY", "")
		req.Config.Set("api_key", apiKey)

		baseURLOpt := optString(req, "base_url")
		baseURL := resolve.String(ctx.Context, baseURLOpt, nil, "", deps.Config, provider+".base_url", envPrefix+"_BASE_URL", "")
		if baseURL != "" {
			req.Config.Set("base_url", baseURL)
		}

		modelOpt := optString(req, "model")
		model := resolve.String(ctx.Context, modelOpt, nil, "", deps.Config, provider+".default_model", envPrefix+"_MODEL", "")
		if model != "" {
			req.Config.Set("model", model)
		}

		timeout := deps.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		req.Config.Set("timeout", timeout)
		return req
	}}
}

func optString(req *types.Request, key string) *string {
	if v, ok := req.Options.Get(key); ok {
		if s, ok := v.(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

func envPrefixFor(provider string) string {
	return strings.ToUpper(provider)
}

// 4. PrepareStreaming moves the on_chunk callback from options into
// config so the rest of the pipeline reads it from one place.
func prepareStreaming() pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "PrepareStreaming", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		if cb, ok := req.Options.Get("on_chunk"); ok {
			req.Config.Set("stream_callback", cb)
			req.Options.Delete("on_chunk")
		}
		return req
	}}
}

// 5 & 6. BuildRequest / BuildHTTPClient. A provider registered as an
// adapter.LocalRunner skips both: there is no wire request or HTTP
// client to build.
func buildRequest(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "BuildRequest", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		a, _ := deps.Adapters.Get(req.Provider)
		if _, ok := a.(adapter.LocalRunner); ok {
			req.Assign("local", true)
			return req
		}
		httpReq, err := a.BuildRequest(ctx.Context, req)
		if err != nil {
			return req.HaltWithError("BuildRequest", "exception", err.Error())
		}
		req.Assign("http_request", httpReq)
		return req
	}}
}

func buildHTTPClient(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "BuildHTTPClient", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		if isLocal(req) {
			return req
		}
		streaming := req.Options.Stream()
		cfg := httpstack.Config{
			Timeout: timeoutFrom(req),
			Debug:   deps.Debug,
			Logger:  deps.Logger,
		}
		if deps.Telemetry != nil {
			cfg.Emitter = deps.Telemetry
		}
		if deps.Breakers != nil {
			cfg.Breaker = deps.Breakers.Get(req.Provider)
		}
		if !streaming && deps.RetryPolicy != nil {
			cfg.Retry = deps.RetryPolicy
		}
		if streaming {
			cfg.Timeout = 0 // an overall timeout would cut a long-lived stream short
		}

		transport := httpstack.Build(cfg, httpstack.NewTransport())
		client := &http.Client{Transport: transport, Timeout: cfg.Timeout}
		req.Assign("http_client", client)
		return req
	}}
}

func timeoutFrom(req *types.Request) time.Duration {
	if v, ok := req.Config.Get("timeout"); ok {
		if d, ok := v.(time.Duration); ok {
			return d
		}
	}
	return 60 * time.Second
}

func isLocal(req *types.Request) bool {
	v, _ := req.AssignValue("local")
	b, _ := v.(bool)
	return b
}

// 7+8. Execute dispatches to ExecuteLocal for a LocalRunner provider,
// otherwise to ExecuteStreamRequest or ExecuteRequest depending on
// options.stream (§4.2 step 8's ConditionalPlug). AuthRequest (step 7)
// has no separate plug here: every bespoke adapter (e.g. bedrock) signs
// its own request inside BuildRequest, so there is nothing left for a
// generic signer to do.
func execute(deps Deps) pipeline.Plug {
	return pipeline.ConditionalPlug{
		PlugName:  "Execute",
		Predicate: isLocal,
		IfTrue:    executeLocal(deps),
		IfFalse: pipeline.ConditionalPlug{
			PlugName:  "ExecuteHTTP",
			Predicate: func(r *types.Request) bool { return r.Options.Stream() },
			IfTrue:    executeStreamRequest(deps),
			IfFalse:   executeRequest(deps),
		},
	}
}

func executeLocal(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "ExecuteLocal", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		a, _ := deps.Adapters.Get(req.Provider)
		runner, ok := a.(adapter.LocalRunner)
		if !ok {
			return req.HaltWithError("ExecuteLocal", "exception", fmt.Sprintf("%s is not a local runner", req.Provider))
		}
		if req.Options.Stream() {
			ch, err := runner.RunStream(ctx.Context, req)
			if err != nil {
				return req.HaltWithError("ExecuteLocal", "provider", err.Error())
			}
			req.Assign("response_stream", ch)
			req.State = types.StateStreaming
			return req
		}
		resp, err := runner.Run(ctx.Context, req)
		if err != nil {
			return req.HaltWithError("ExecuteLocal", "provider", err.Error())
		}
		req.Result = resp
		req.State = types.StateCompleted
		return req
	}}
}

func executeRequest(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "ExecuteRequest", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		httpReq, client, ok := httpReqAndClient(req)
		if !ok {
			return req.HaltWithError("ExecuteRequest", "exception", "missing http_request/http_client assigns")
		}
		resp, err := client.Do(httpReq.WithContext(ctx.Context))
		if err != nil {
			return req.HaltWithError("ExecuteRequest", "transport", err.Error())
		}
		if resp.StatusCode >= 400 {
			return haltOnProviderError(deps, req, "ExecuteRequest", resp)
		}
		req.State = types.StateExecuting
		req.Assign("http_response", resp)
		return req
	}}
}

func executeStreamRequest(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "ExecuteStreamRequest", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		httpReq, client, ok := httpReqAndClient(req)
		if !ok {
			return req.HaltWithError("ExecuteStreamRequest", "exception", "missing http_request/http_client assigns")
		}
		resp, err := client.Do(httpReq.WithContext(ctx.Context))
		if err != nil {
			return req.HaltWithError("ExecuteStreamRequest", "transport", err.Error())
		}
		if resp.StatusCode >= 400 {
			return haltOnProviderError(deps, req, "ExecuteStreamRequest", resp)
		}

		rawCh := make(chan []byte, 16)
		go pumpRawBytes(ctx, resp.Body, rawCh)

		req.Assign("raw_stream", rawCh)
		req.State = types.StateStreaming
		return req
	}}
}

func pumpRawBytes(ctx pipeline.Context, body io.ReadCloser, out chan<- []byte) {
	defer close(out)
	defer body.Close()
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func httpReqAndClient(req *types.Request) (*http.Request, *http.Client, bool) {
	reqAny, ok := req.AssignValue("http_request")
	if !ok {
		return nil, nil, false
	}
	clientAny, ok := req.AssignValue("http_client")
	if !ok {
		return nil, nil, false
	}
	httpReq, ok := reqAny.(*http.Request)
	if !ok {
		return nil, nil, false
	}
	client, ok := clientAny.(*http.Client)
	if !ok {
		return nil, nil, false
	}
	return httpReq, client, true
}

func haltOnProviderError(deps Deps, req *types.Request, plug string, resp *http.Response) *types.Request {
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	a, _ := deps.Adapters.Get(req.Provider)
	err := a.MapError(resp.StatusCode, body)
	reason := "http"
	if classified, ok := err.(*exllmerrors.Error); ok {
		reason = string(classified.Kind)
	}
	return req.HaltWithError(plug, reason, err.Error())
}

// 9. StreamParseResponse wraps the raw byte stream with the decoder
// matching this provider's wire framing and attaches the decoded
// StreamChunk channel to Assigns["response_stream"].
func hasRawStream(req *types.Request) bool {
	_, ok := req.AssignValue("raw_stream")
	return ok
}

func streamParseResponse(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "StreamParseResponse", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		rawAny, _ := req.AssignValue("raw_stream")
		rawCh, ok := rawAny.(chan []byte)
		if !ok {
			return req
		}
		a, _ := deps.Adapters.Get(req.Provider)
		dec := decoderFor(req.Provider, a)

		out := make(chan types.StreamChunk, 16)
		go func() {
			defer close(out)
			for raw := range rawCh {
				chunks, err := dec.Feed(raw)
				if err != nil {
					out <- types.StreamChunk{FinishReason: "error"}
					return
				}
				for _, c := range chunks {
					select {
					case out <- c:
					case <-ctx.Done():
						return
					}
					if c.Terminal() {
						return
					}
				}
			}
		}()

		req.Assign("response_stream", (<-chan types.StreamChunk)(out))
		req.State = types.StateStreaming
		return req
	}}
}

func decoderFor(providerName string, a adapter.Adapter) decode.Decoder {
	mapper := func(eventType string, payload []byte) (types.StreamChunk, bool, error) {
		chunk, err := a.ParseStreamChunk(payload)
		if err != nil {
			return types.StreamChunk{}, false, err
		}
		if chunk == nil {
			return types.StreamChunk{}, false, nil
		}
		return *chunk, true, nil
	}
	switch providerName {
	case "bedrock":
		return decode.NewEventStreamDecoder(mapper)
	case "ollama":
		return decode.NewNDJSONDecoder(mapper)
	}
	return decode.NewSSEDecoder(mapper)
}

// 10. ParseResponse only runs when Execute produced a raw HTTP response
// that hasn't been turned into a Result yet (non-streaming, non-local).
func parseResponse(deps Deps) pipeline.Plug {
	return pipeline.PlugFunc{PlugName: "ParseResponse", Fn: func(ctx pipeline.Context, req *types.Request) *types.Request {
		if req.Halted || req.Result != nil || req.State == types.StateStreaming {
			return req
		}
		respAny, ok := req.AssignValue("http_response")
		if !ok {
			return req
		}
		resp := respAny.(*http.Response)
		a, _ := deps.Adapters.Get(req.Provider)
		out, err := a.ParseResponse(resp)
		resp.Body.Close()
		if err != nil {
			return req.HaltWithError("ParseResponse", "protocol", err.Error())
		}
		req.Result = out
		req.State = types.StateCompleted
		return req
	}}
}
