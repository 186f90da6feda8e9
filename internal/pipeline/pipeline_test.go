package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/types"
)

func newTestContext() Context {
	return NewContext(context.Background(), nil)
}

func TestRun_SequentialMutation(t *testing.T) {
	appendTag := func(tag string) Plug {
		return PlugFunc{PlugName: tag, Fn: func(_ Context, req *types.Request) *types.Request {
			req.Assign("order", append(req.Assigns["order"].([]string), tag))
			return req
		}}
	}
	req := types.NewRequest("r1", "openai", nil, nil)
	req.Assign("order", []string{})

	p := New(appendTag("a"), appendTag("b"), appendTag("c"))
	out := Run(newTestContext(), p, req)

	assert.Equal(t, []string{"a", "b", "c"}, out.Assigns["order"])
}

func TestRun_HaltedRequestSkipsRemainingPlugs(t *testing.T) {
	halt := PlugFunc{PlugName: "halt", Fn: func(_ Context, req *types.Request) *types.Request {
		return req.HaltWithError("halt", "validation", "no good")
	}}
	shouldNotRun := PlugFunc{PlugName: "should_not_run", Fn: func(_ Context, req *types.Request) *types.Request {
		req.Assign("ran", true)
		return req
	}}

	req := types.NewRequest("r1", "openai", nil, nil)
	out := Run(newTestContext(), New(halt, shouldNotRun), req)

	assert.True(t, out.Halted)
	assert.Equal(t, types.StateError, out.State)
	_, ran := out.AssignValue("ran")
	assert.False(t, ran)
}

func TestRun_PanicRecoveredAsException(t *testing.T) {
	boom := PlugFunc{PlugName: "boom", Fn: func(_ Context, req *types.Request) *types.Request {
		panic("kaboom")
	}}

	req := types.NewRequest("r1", "openai", nil, nil)
	out := Run(newTestContext(), New(boom), req)

	require.True(t, out.Halted)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "exception", out.Errors[0].Reason)
	assert.Equal(t, "boom", out.Errors[0].Plug)
	assert.Equal(t, "kaboom", out.Errors[0].Message)
}

func TestConditionalPlug_SelectsBranch(t *testing.T) {
	streamBranch := PlugFunc{PlugName: "stream", Fn: func(_ Context, req *types.Request) *types.Request {
		req.Assign("branch", "stream")
		return req
	}}
	nonStreamBranch := PlugFunc{PlugName: "non_stream", Fn: func(_ Context, req *types.Request) *types.Request {
		req.Assign("branch", "non_stream")
		return req
	}}
	cond := ConditionalPlug{
		PlugName:  "execute",
		Predicate: func(req *types.Request) bool { return req.Options.Stream() },
		IfTrue:    streamBranch,
		IfFalse:   nonStreamBranch,
	}

	streaming := types.NewRequest("r1", "openai", nil, map[string]any{"stream": true})
	out := Run(newTestContext(), New(cond), streaming)
	v, _ := out.AssignValue("branch")
	assert.Equal(t, "stream", v)

	nonStreaming := types.NewRequest("r2", "openai", nil, map[string]any{"stream": false})
	out = Run(newTestContext(), New(cond), nonStreaming)
	v, _ = out.AssignValue("branch")
	assert.Equal(t, "non_stream", v)
}

func TestMiddlewarePlug_WrapsInnerPipeline(t *testing.T) {
	var events []string
	inner := New(PlugFunc{PlugName: "inner", Fn: func(_ Context, req *types.Request) *types.Request {
		events = append(events, "inner")
		return req
	}})
	mw := MiddlewarePlug{
		PlugName: "telemetry",
		Before:   func(_ Context, req *types.Request) *types.Request { events = append(events, "before"); return req },
		Inner:    inner,
		After:    func(_ Context, req *types.Request) *types.Request { events = append(events, "after"); return req },
	}

	req := types.NewRequest("r1", "openai", nil, nil)
	Run(newTestContext(), New(mw), req)

	assert.Equal(t, []string{"before", "inner", "after"}, events)
}
