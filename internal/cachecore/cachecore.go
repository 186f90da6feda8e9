// Package cachecore implements the Cache Core (§4.9): a single
// with_cache(key, opts, fn) seam in front of either a hot in-memory
// store (production) or an on-disk replay fixture (test).
package cachecore

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Fn is the populate function run on a cache miss. An error from Fn
// propagates unchanged and is never cached.
type Fn func(ctx context.Context) (value any, err error)

// Options configures one with_cache call.
type Options struct {
	TTL time.Duration
}

// Emitter records cache telemetry events. Satisfied by
// *internal/telemetry.Recorder without cachecore importing it
// directly, keeping the dependency one-directional.
type Emitter interface {
	Emit(event string, fields map[string]any)
}

// Strategy is the single seam every caller goes through.
type Strategy interface {
	WithCache(ctx context.Context, key string, opts Options, fn Fn) (value any, fromCache bool, err error)
}

type slogEmitter struct{ log *slog.Logger }

func (s slogEmitter) Emit(event string, fields map[string]any) {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	s.log.Debug(event, args...)
}

// Production is the default strategy: a hot in-memory KV with TTL,
// single-flight populate, and a periodic expiry sweep (delegated to
// go-cache's own janitor).
type Production struct {
	store *gocache.Cache
	group singleflight.Group
	emit  Emitter
}

// NewProduction builds a Production strategy. defaultTTL applies when
// Options.TTL is zero; cleanupInterval drives go-cache's janitor.
func NewProduction(defaultTTL, cleanupInterval time.Duration, emit Emitter) *Production {
	if emit == nil {
		emit = slogEmitter{log: slog.Default()}
	}
	return &Production{
		store: gocache.New(defaultTTL, cleanupInterval),
		emit:  emit,
	}
}

// WithCache implements Strategy. Concurrent misses for the same key
// collapse onto a single Fn invocation via singleflight, so every
// waiter observes the same populated value.
func (p *Production) WithCache(ctx context.Context, key string, opts Options, fn Fn) (any, bool, error) {
	if v, ok := p.store.Get(key); ok {
		p.emit.Emit("cache.hit", map[string]any{"key": key})
		return v, true, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if v, ok := p.store.Get(key); ok {
			return v, nil
		}
		p.emit.Emit("cache.miss", map[string]any{"key": key})
		val, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = gocache.DefaultExpiration
		}
		p.store.Set(key, val, ttl)
		p.emit.Emit("cache.put", map[string]any{"key": key})
		return val, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Delete removes a key ahead of its TTL, e.g. on explicit invalidation.
func (p *Production) Delete(key string) {
	p.store.Delete(key)
}

// testFlagKey is the context key a caller sets to route WithCache
// through the replay tier instead of Production.
type testFlagKey struct{}

// WithTestContext marks ctx as running under the replay test strategy.
func WithTestContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, testFlagKey{}, true)
}

// IsTestContext reports whether ctx was marked by WithTestContext.
func IsTestContext(ctx context.Context) bool {
	v, _ := ctx.Value(testFlagKey{}).(bool)
	return v
}

// Replayer is the cold on-disk fixture store the Test strategy
// consults. internal/cachecore/replay.Store implements this.
type Replayer interface {
	Load(ctx context.Context, key string) (value any, ok bool)
	Save(ctx context.Context, key string, value any) error
}

// Test implements §4.9's Test strategy: under a test context it
// bypasses the hot cache and consults a replay fixture store; outside
// a test context it delegates entirely to Production.
type Test struct {
	replay   Replayer
	fallback *Production
	emit     Emitter
}

// NewTest builds a Test strategy over a replay store, falling back to
// fallback when ctx is not marked as a test context.
func NewTest(replay Replayer, fallback *Production, emit Emitter) *Test {
	if emit == nil {
		emit = slogEmitter{log: slog.Default()}
	}
	return &Test{replay: replay, fallback: fallback, emit: emit}
}

// WithCache implements Strategy.
func (t *Test) WithCache(ctx context.Context, key string, opts Options, fn Fn) (any, bool, error) {
	if !IsTestContext(ctx) {
		return t.fallback.WithCache(ctx, key, opts, fn)
	}

	if v, ok := t.replay.Load(ctx, key); ok {
		t.emit.Emit("test_cache.hit", map[string]any{"key": key})
		return v, true, nil
	}

	t.emit.Emit("test_cache.miss", map[string]any{"key": key})
	v, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := t.replay.Save(ctx, key, v); err != nil {
		return nil, false, err
	}
	t.emit.Emit("test_cache.save", map[string]any{"key": key})
	return v, false, nil
}
