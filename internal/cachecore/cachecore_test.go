package cachecore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduction_MissPopulatesThenHits(t *testing.T) {
	p := NewProduction(time.Minute, time.Minute, nil)
	var calls int32

	fn := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	v1, hit1, err := p.WithCache(context.Background(), "k", Options{}, fn)
	require.NoError(t, err)
	assert.False(t, hit1)
	assert.Equal(t, "value", v1)

	v2, hit2, err := p.WithCache(context.Background(), "k", Options{}, fn)
	require.NoError(t, err)
	assert.True(t, hit2)
	assert.Equal(t, "value", v2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProduction_ErrorPropagatesUncached(t *testing.T) {
	p := NewProduction(time.Minute, time.Minute, nil)
	boom := errors.New("boom")

	_, _, err := p.WithCache(context.Background(), "k", Options{}, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	var called bool
	_, _, err = p.WithCache(context.Background(), "k", Options{}, func(ctx context.Context) (any, error) {
		called = true
		return "v", nil
	})
	require.NoError(t, err)
	assert.True(t, called, "failed populate must not be cached")
}

func TestProduction_ConcurrentMissesSingleFlight(t *testing.T) {
	p := NewProduction(time.Minute, time.Minute, nil)
	var calls int32
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, _ = p.WithCache(context.Background(), "shared", Options{}, func(ctx context.Context) (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(5 * time.Millisecond)
				return "v", nil
			})
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type fakeReplay struct {
	mu    sync.Mutex
	store map[string]any
}

func newFakeReplay() *fakeReplay { return &fakeReplay{store: map[string]any{}} }

func (f *fakeReplay) Load(_ context.Context, key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.store[key]
	return v, ok
}

func (f *fakeReplay) Save(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = value
	return nil
}

func TestTest_BypassesHotCacheUnderTestContext(t *testing.T) {
	replay := newFakeReplay()
	prod := NewProduction(time.Minute, time.Minute, nil)
	strat := NewTest(replay, prod, nil)

	ctx := WithTestContext(context.Background())
	var calls int32
	fn := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "recorded", nil
	}

	v1, hit1, err := strat.WithCache(ctx, "k", Options{}, fn)
	require.NoError(t, err)
	assert.False(t, hit1)
	assert.Equal(t, "recorded", v1)

	v2, hit2, err := strat.WithCache(ctx, "k", Options{}, fn)
	require.NoError(t, err)
	assert.True(t, hit2)
	assert.Equal(t, "recorded", v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTest_DelegatesToFallbackOutsideTestContext(t *testing.T) {
	replay := newFakeReplay()
	prod := NewProduction(time.Minute, time.Minute, nil)
	strat := NewTest(replay, prod, nil)

	v, hit, err := strat.WithCache(context.Background(), "k", Options{}, func(ctx context.Context) (any, error) {
		return "live", nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "live", v)

	_, ok := replay.Load(context.Background(), "k")
	assert.False(t, ok, "non-test calls must not populate the replay store")
}
