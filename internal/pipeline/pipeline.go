// Package pipeline implements the plug-chain runtime (§4.1): a Request
// flows through an ordered list of Plugs, each of which may mutate it,
// halt it, or delegate to a nested Pipeline.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/exrt/exllm/pkg/errors"
	"github.com/exrt/exllm/pkg/types"
)

// Plug is a single named unit in a pipeline. Call never panics across
// the boundary: Run recovers panics and converts them into
// HaltWithError(req, "exception", ...) per §4.1's error policy.
type Plug interface {
	Name() string
	Call(ctx Context, req *types.Request) *types.Request
}

// Context is the ambient context a Plug runs with. It embeds the
// standard context.Context for cancellation/deadlines and carries a
// logger so every plug can log without a global.
type Context struct {
	context.Context
	Logger *slog.Logger
}

// NewContext wraps a context.Context for pipeline execution.
func NewContext(ctx context.Context, logger *slog.Logger) Context {
	if logger == nil {
		logger = slog.Default()
	}
	return Context{Context: ctx, Logger: logger}
}

// PlugFunc adapts a bare function to the Plug interface.
type PlugFunc struct {
	PlugName string
	Fn       func(Context, *types.Request) *types.Request
}

func (f PlugFunc) Name() string { return f.PlugName }

func (f PlugFunc) Call(ctx Context, req *types.Request) *types.Request {
	return f.Fn(ctx, req)
}

// Pipeline is pure data: a list of Plugs. Building (New) and running
// (Run) are separate operations so pipelines can be introspected and
// substituted in tests without executing them.
type Pipeline []Plug

// New builds a Pipeline from an ordered list of plugs.
func New(plugs ...Plug) Pipeline {
	return Pipeline(plugs)
}

// Run executes the pipeline sequentially. A halted request skips every
// remaining plug; each plug's returned Request replaces the current
// one. Panics inside a plug are recovered and turned into a halted
// request with reason "exception", never propagated to the caller.
func Run(ctx Context, p Pipeline, req *types.Request) (result *types.Request) {
	result = req
	for _, plug := range p {
		if result.Halted {
			return result
		}
		result = runOne(ctx, plug, result)
	}
	return result
}

func runOne(ctx Context, plug Plug, req *types.Request) (out *types.Request) {
	defer func() {
		if r := recover(); r != nil {
			out = req
			out.HaltWithError(plug.Name(), string(errors.KindException), toMessage(r))
		}
	}()
	return plug.Call(ctx, req)
}

func toMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "panic in plug"
}

// ConditionalPlug evaluates Predicate over the Request and runs exactly
// one of IfTrue/IfFalse. This is how streaming branches (§4.2 steps
// 8-9) are chosen at runtime.
type ConditionalPlug struct {
	PlugName  string
	Predicate func(*types.Request) bool
	IfTrue    Plug
	IfFalse   Plug
}

func (c ConditionalPlug) Name() string { return c.PlugName }

func (c ConditionalPlug) Call(ctx Context, req *types.Request) *types.Request {
	if c.Predicate(req) {
		if c.IfTrue == nil {
			return req
		}
		return runOne(ctx, c.IfTrue, req)
	}
	if c.IfFalse == nil {
		return req
	}
	return runOne(ctx, c.IfFalse, req)
}

// MiddlewarePlug wraps an inner Pipeline for nested composition (e.g.
// TelemetryMiddleware wraps the whole standard pipeline, §4.2). Before
// and After run outside the inner pipeline's halted check so a
// middleware can always observe the final request, even a halted one.
type MiddlewarePlug struct {
	PlugName string
	Before   func(Context, *types.Request) *types.Request
	Inner    Pipeline
	After    func(Context, *types.Request) *types.Request
}

func (m MiddlewarePlug) Name() string { return m.PlugName }

func (m MiddlewarePlug) Call(ctx Context, req *types.Request) *types.Request {
	if m.Before != nil {
		req = m.Before(ctx, req)
	}
	req = Run(ctx, m.Inner, req)
	if m.After != nil {
		req = m.After(ctx, req)
	}
	return req
}
