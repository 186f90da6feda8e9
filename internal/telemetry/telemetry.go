// Package telemetry implements the Telemetry component (C1, §4.14):
// a single span(event_name, metadata, fn) seam emitting start/stop/
// exception events, enriched with token/cost fields when the result
// shape is recognized, backed by structured logging, OTel spans, and
// Prometheus counters.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/exrt/exllm/internal/observability"
	"github.com/exrt/exllm/pkg/errors"
	"github.com/exrt/exllm/pkg/types"
)

// tracerName matches the teacher's gen_ai.system resource attribute
// convention (observability.TracerName), kept distinct so spans from
// the two packages are still attributable to this runtime specifically.
const tracerName = "exllm"

var (
	eventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "exllm",
		Name:      "event_duration_seconds",
		Help:      "Duration of span() events by name and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event", "outcome"})

	eventTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exllm",
		Name:      "event_tokens_total",
		Help:      "Tokens observed on recognized result shapes, by event and direction.",
	}, []string{"event", "direction"})

	eventCostCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exllm",
		Name:      "event_cost_cents_total",
		Help:      "Cost in cents attributed to recognized result shapes, by event.",
	}, []string{"event"})
)

// Recorder is the span()/Emit() entry point threaded through the
// runtime. It satisfies the duck-typed Emitter interfaces in
// cachecore and httpstack (Emit(event, fields)) without either
// package importing telemetry directly.
type Recorder struct {
	log      *slog.Logger
	redactor *observability.Redactor
	tracer   trace.Tracer
}

// New builds a Recorder. A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		log:      log,
		redactor: observability.NewRedactor(),
		tracer:   otel.Tracer(tracerName),
	}
}

// Emit records a one-shot event with no duration, e.g. cache.hit or
// http.error reported by a lower-level component that already knows
// its own timing.
func (r *Recorder) Emit(event string, fields map[string]any) {
	r.log.Debug(event, r.redactedArgs(fields)...)
}

func (r *Recorder) redactedArgs(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		if s, ok := v.(string); ok {
			v = r.redactor.Redact(s)
		}
		args = append(args, k, v)
	}
	return args
}

// Span runs fn inside event_name's start/stop/exception envelope, per
// §4.14: emits "<event_name>_start" with metadata plus system_time,
// runs fn, emits "<event_name>_stop" with {duration, duration_ms} and
// (when the result shape is recognized) {input_tokens, output_tokens,
// total_tokens, cost_cents}; on error emits "<event_name>_exception"
// with {kind, reason} and re-raises.
func Span(ctx context.Context, r *Recorder, eventName string, metadata map[string]any, fn func(context.Context) (any, error)) (any, error) {
	ctx, otelSpan := r.tracer.Start(ctx, eventName)
	defer otelSpan.End()

	start := time.Now()
	startFields := mergeFields(metadata, map[string]any{"system_time": start.UTC().Format(time.RFC3339Nano)})
	r.log.Debug(eventName+"_start", r.redactedArgs(startFields)...)

	result, err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		kind, reason := classify(err)
		eventDuration.WithLabelValues(eventName, "exception").Observe(duration.Seconds())
		otelSpan.SetAttributes(attribute.String("exllm.outcome", "exception"), attribute.String("exllm.error_kind", string(kind)))
		r.log.Debug(eventName+"_exception", r.redactedArgs(map[string]any{
			"kind": kind, "reason": reason, "duration_ms": duration.Milliseconds(),
		})...)
		return nil, err
	}

	eventDuration.WithLabelValues(eventName, "success").Observe(duration.Seconds())
	stopFields := map[string]any{
		"duration":    duration,
		"duration_ms": duration.Milliseconds(),
	}
	enrichWithUsage(eventName, result, stopFields)
	r.log.Debug(eventName+"_stop", r.redactedArgs(stopFields)...)
	return result, nil
}

func mergeFields(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func classify(err error) (errors.Kind, string) {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Kind, e.Message
	}
	return errors.KindException, err.Error()
}

// enrichWithUsage adds {input_tokens, output_tokens, total_tokens,
// cost_cents} to fields when result is a recognized shape, and bumps
// the matching Prometheus counters.
func enrichWithUsage(event string, result any, fields map[string]any) {
	var usage types.Usage
	var cost float64
	switch v := result.(type) {
	case *types.LLMResponse:
		if v == nil {
			return
		}
		usage = v.Usage
		if v.Cost != nil {
			cost = *v.Cost
		}
	case types.LLMResponse:
		usage = v.Usage
		if v.Cost != nil {
			cost = *v.Cost
		}
	case *types.EmbeddingResponse:
		if v == nil {
			return
		}
		fields["input_tokens"] = v.Usage.PromptTokens
		fields["total_tokens"] = v.Usage.TotalTokens
		eventTokens.WithLabelValues(event, "input").Add(float64(v.Usage.PromptTokens))
		return
	default:
		return
	}

	fields["input_tokens"] = usage.InputTokens
	fields["output_tokens"] = usage.OutputTokens
	fields["total_tokens"] = usage.TotalTokens
	fields["cost_cents"] = cost * 100
	eventTokens.WithLabelValues(event, "input").Add(float64(usage.InputTokens))
	eventTokens.WithLabelValues(event, "output").Add(float64(usage.OutputTokens))
	eventCostCents.WithLabelValues(event).Add(cost * 100)
}
