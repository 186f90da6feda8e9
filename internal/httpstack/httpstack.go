// Package httpstack builds the ordered HTTP middleware stack (§4.10):
// telemetry, circuit breaker, retry, timeout, logger, compression, and
// headers/base-URL, composed outer-to-inner as a chain of
// http.RoundTripper decorators around a pooled transport. There is no
// JSON framing layer: bodies pass through unchanged apart from the
// optional gzip of request bodies.
package httpstack

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/exrt/exllm/internal/breaker"
	"github.com/exrt/exllm/internal/retry"
	"github.com/exrt/exllm/pkg/errors"
)

// Emitter records http/telemetry spans. Satisfied by
// *internal/telemetry.Recorder (duck-typed, like cachecore.Emitter).
type Emitter interface {
	Emit(event string, fields map[string]any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Config tunes the stack. Streaming transports should set Retry to nil
// so retries never run against a streamed body, per §4.10.
type Config struct {
	Breaker          *breaker.Breaker // nil disables the circuit breaker layer
	Retry            *retry.Policy    // nil disables the retry layer (streaming)
	Timeout          time.Duration    // 0 disables the timeout layer
	Debug            bool             // gates the logger layer
	Logger           *slog.Logger
	Emitter          Emitter
	CompressRequests bool // gzip request bodies when true
	SetHeaders       func(*http.Request) // provider-specific auth/base-URL injection
}

// Build composes the ordered stack around base, returning the outer
// RoundTripper a client should use.
func Build(cfg Config, base http.RoundTripper) http.RoundTripper {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = noopEmitter{}
	}

	rt := base
	rt = headers(cfg, rt)         // 8. Headers / Base URL (innermost: closest to the wire)
	rt = compression(cfg, rt)     // 6. Compression
	rt = logger(cfg, rt)          // 5. Logger
	rt = timeoutLayer(cfg, rt)    // 4. Timeout
	rt = retryLayer(cfg, rt)      // 3. Retry
	rt = circuitBreaker(cfg, rt)  // 2. Circuit Breaker
	rt = telemetry(cfg, rt)       // 1. Telemetry (outermost)
	return rt
}

func telemetry(cfg Config, next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		fields := map[string]any{"method": req.Method, "url": req.URL.String()}
		cfg.Emitter.Emit("http.start", fields)
		start := time.Now()

		resp, err := next.RoundTrip(req)

		duration := time.Since(start)
		if err != nil {
			cfg.Emitter.Emit("http.error", mergeFields(fields, map[string]any{
				"error": err.Error(), "duration_ms": duration.Milliseconds(),
			}))
			return nil, err
		}
		cfg.Emitter.Emit("http.stop", mergeFields(fields, map[string]any{
			"status": resp.StatusCode, "duration_ms": duration.Milliseconds(),
		}))
		return resp, nil
	})
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

// circuitBreaker short-circuits calls while the breaker is open and
// classifies the outcome of calls it allows through, per §4.11: 5xx,
// 429, transport errors, and rate-limit-flavored 401s count as
// failures; 2xx and genuine 401s do not.
func circuitBreaker(cfg Config, next http.RoundTripper) http.RoundTripper {
	if cfg.Breaker == nil {
		return next
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		allowed, err := cfg.Breaker.Allow()
		if !allowed {
			return nil, err
		}

		resp, err := next.RoundTrip(req)
		if err != nil {
			cfg.Breaker.RecordFailure(true)
			return nil, err
		}

		switch {
		case resp.StatusCode >= 500, resp.StatusCode == 429:
			cfg.Breaker.RecordFailure(true)
		case resp.StatusCode == 401:
			cfg.Breaker.RecordFailure(responseLooksRateLimited(resp))
		default:
			cfg.Breaker.RecordSuccess()
		}
		return resp, nil
	})
}

// responseLooksRateLimited peeks the response body for §4.11's
// rate-limit hint phrases without consuming it for the caller.
func responseLooksRateLimited(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}
	const peekLimit = 4096
	buf, err := io.ReadAll(io.LimitReader(resp.Body, peekLimit))
	resp.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), resp.Body))
	if err != nil {
		return false
	}
	body := bytesToLowerString(buf)
	for _, hint := range errors.RateLimitHints() {
		if containsFold(body, hint) {
			return true
		}
	}
	return false
}

func bytesToLowerString(b []byte) string {
	return string(bytes.ToLower(b))
}

func containsFold(haystack, needle string) bool {
	return bytes.Contains([]byte(haystack), bytes.ToLower([]byte(needle)))
}

// retryLayer retries per §4.12. Only classified-retryable failures
// (see classifyHTTPError) trigger another attempt; the request body
// must be re-readable, so GetBody is required when Body is set.
func retryLayer(cfg Config, next http.RoundTripper) http.RoundTripper {
	if cfg.Retry == nil {
		return next
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		var resp *http.Response
		err := cfg.Retry.Do(req.Context(), func(attempt int) error {
			if attempt > 0 && req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return errors.Wrap(errors.KindTransport, "rewind request body for retry", err)
				}
				req.Body = body
			}

			r, err := next.RoundTrip(req)
			if err != nil {
				return errors.Wrap(errors.KindTransport, "transport error", err).WithRetryable(true)
			}
			if classifyHTTPError(r.StatusCode) {
				resp = r
				return errors.Newf(errors.KindHTTP, "http %d", r.StatusCode).
					WithStatus(r.StatusCode).WithRetryable(true)
			}
			resp = r
			return nil
		})
		if err != nil && resp == nil {
			return nil, err
		}
		return resp, nil
	})
}

func classifyHTTPError(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func timeoutLayer(cfg Config, next http.RoundTripper) http.RoundTripper {
	if cfg.Timeout <= 0 {
		return next
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(req.Context(), cfg.Timeout)
		defer cancel()
		return next.RoundTrip(req.WithContext(ctx))
	})
}

func logger(cfg Config, next http.RoundTripper) http.RoundTripper {
	if !cfg.Debug {
		return next
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		cfg.Logger.Debug("http request", "method", req.Method, "url", req.URL.String())
		resp, err := next.RoundTrip(req)
		if err != nil {
			cfg.Logger.Debug("http response error", "error", err)
			return nil, err
		}
		cfg.Logger.Debug("http response", "status", resp.StatusCode)
		return resp, nil
	})
}

// compression gzips the request body when CompressRequests is set.
// Response decompression is handled by net/http transparently for
// Accept-Encoding: gzip as long as the caller doesn't set it manually.
func compression(cfg Config, next http.RoundTripper) http.RoundTripper {
	if !cfg.CompressRequests {
		return next
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Body == nil {
			return next.RoundTrip(req)
		}
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, errors.Wrap(errors.KindTransport, "read request body for compression", err)
		}
		req.Body.Close()

		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(raw); err != nil {
			return nil, errors.Wrap(errors.KindTransport, "gzip request body", err)
		}
		if err := gz.Close(); err != nil {
			return nil, errors.Wrap(errors.KindTransport, "gzip request body", err)
		}

		compressed := buf.Bytes()
		req.Body = io.NopCloser(bytes.NewReader(compressed))
		req.ContentLength = int64(len(compressed))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(compressed)), nil
		}
		req.Header.Set("Content-Encoding", "gzip")
		return next.RoundTrip(req)
	})
}

// headers applies provider-specific auth headers and base URL rewrites
// set up at client-build time (§4.10 step 8).
func headers(cfg Config, next http.RoundTripper) http.RoundTripper {
	if cfg.SetHeaders == nil {
		return next
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		cfg.SetHeaders(req)
		return next.RoundTrip(req)
	})
}

// NewTransport builds the base *http.Transport with connection pooling
// matching the client's production defaults.
func NewTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewStreamingTransport clones base but applies the timeout only to
// the response header wait (time-to-first-byte), never to the body
// read, so long-running streams aren't killed mid-flight.
func NewStreamingTransport(base *http.Transport, headerTimeout time.Duration) *http.Transport {
	t := base.Clone()
	if headerTimeout > 0 {
		t.ResponseHeaderTimeout = headerTimeout
	}
	return t
}
