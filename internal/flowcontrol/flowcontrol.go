// Package flowcontrol implements the Flow Controller (§4.6): the
// single authoritative mediator between a stream producer and its
// consumer, with backpressure, rate limiting, and optional batching.
package flowcontrol

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/exrt/exllm/internal/batcher"
	"github.com/exrt/exllm/internal/streambuf"
	"github.com/exrt/exllm/pkg/errors"
	"github.com/exrt/exllm/pkg/types"
)

// Status is the controller's lifecycle state.
type Status int32

const (
	StatusRunning Status = iota
	StatusCompleting
	StatusCompleted
)

// Config tunes the controller. Zero values fall back to §4.6's
// defaults: capacity 100, backpressure at 80% fill, 1ms rate limit.
type Config struct {
	BufferCapacity       int
	BackpressureThreshold float64
	RateLimit            time.Duration
	OverflowStrategy      streambuf.OverflowStrategy
	BatchConfig           *batcher.Config
}

// DefaultConfig returns §4.6's defaults.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:        100,
		BackpressureThreshold: 0.8,
		RateLimit:             time.Millisecond,
		OverflowStrategy:      streambuf.DropNewest,
	}
}

// Metrics are the controller's monotonic counters plus live gauges,
// per §4.6.
type Metrics struct {
	ChunksReceived    uint64
	ChunksDelivered   uint64
	ChunksDropped     uint64
	BytesReceived     uint64
	BytesDelivered    uint64
	BackpressureEvents uint64
	ConsumerErrors    uint64
	CurrentBufferSize int
	MaxBufferSize     int
	DurationMS        int64
}

// ThroughputChunksPerSec derives throughput from ChunksDelivered and
// DurationMS.
func (m Metrics) ThroughputChunksPerSec() float64 {
	if m.DurationMS <= 0 {
		return 0
	}
	return float64(m.ChunksDelivered) / (float64(m.DurationMS) / 1000.0)
}

// Consumer receives delivered chunks one at a time, in push order. With
// batching configured, chunks are held until their batch is ready and
// are then passed to Consumer one by one; a batch is never handed over
// as a single value.
type Consumer func(types.StreamChunk) error

// Controller mediates a producer and a consumer for one stream.
// PushChunk and Complete run on the caller's goroutine and guard the
// controller's state with a mutex; the only goroutine it starts is the
// consumer worker, run under an errgroup.Group bound to the ctx passed
// to Start. There is no separate controller loop goroutine.
type Controller struct {
	cfg     Config
	buf     *streambuf.Buffer
	batch   *batcher.Batcher
	limiter *rate.Limiter
	consumer Consumer

	mu        sync.Mutex
	status    Status
	lastPush  time.Time
	metrics   Metrics
	startedAt time.Time

	wake   chan struct{}
	done   chan struct{}
	group  *errgroup.Group
	groupCtx context.Context
}

// New builds a Controller for one stream. Start must be called to
// launch the consumer worker before pushing chunks.
func New(cfg Config, consumer Consumer) *Controller {
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultConfig().BufferCapacity
	}
	if cfg.BackpressureThreshold <= 0 {
		cfg.BackpressureThreshold = DefaultConfig().BackpressureThreshold
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultConfig().RateLimit
	}

	c := &Controller{
		cfg:      cfg,
		buf:      streambuf.New(cfg.BufferCapacity, cfg.OverflowStrategy),
		consumer: consumer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		startedAt: time.Now(),
	}
	if cfg.BatchConfig != nil {
		c.batch = batcher.New(*cfg.BatchConfig)
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.RateLimit), 1)
	}
	return c
}

// Start launches the consumer worker under an errgroup bound to ctx.
func (c *Controller) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	c.group = g
	c.groupCtx = gctx
	g.Go(func() error {
		c.runConsumer(gctx)
		return nil
	})
}

// Wait blocks until the consumer worker has exited (after Complete, or
// once the ctx passed to Start is cancelled).
func (c *Controller) Wait() error {
	if c.group == nil {
		return nil
	}
	return c.group.Wait()
}

// PushChunk enqueues a chunk, applying rate limiting and backpressure
// per §4.6. A backpressure rejection never panics or blocks beyond the
// rate-limit sleep; the caller decides whether to retry or drop.
func (c *Controller) PushChunk(c2 types.StreamChunk) error {
	if c.limiter != nil {
		c.limiter.Wait(context.Background()) //nolint:errcheck // rate limiting never errors without a cancelable ctx
	}

	c.mu.Lock()
	if c.status == StatusRunning &&
		c.buf.FillPercentage() >= c.cfg.BackpressureThreshold {
		c.metrics.BackpressureEvents++
		c.mu.Unlock()
		return errors.New(errors.KindBackpressure, "stream buffer above backpressure threshold")
	}
	c.metrics.ChunksReceived++
	c.metrics.BytesReceived += uint64(len(c2.Content))
	c.mu.Unlock()

	res := c.buf.Push(c2)

	c.mu.Lock()
	if res == streambuf.PushOverflow {
		c.metrics.ChunksDropped++
	}
	if size := c.buf.Size(); size > c.metrics.MaxBufferSize {
		c.metrics.MaxBufferSize = size
	}
	c.metrics.CurrentBufferSize = c.buf.Size()
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Complete drains the buffer synchronously, stops the batcher, and
// marks the stream completed. This is the orderly shutdown path.
func (c *Controller) Complete() {
	c.mu.Lock()
	c.status = StatusCompleting
	c.mu.Unlock()

	for {
		chunk, ok := c.buf.Pop()
		if ok == streambuf.PopEmpty {
			break
		}
		c.deliver(chunk)
	}
	if c.batch != nil {
		if rest := c.batch.Flush(); len(rest) > 0 {
			for _, ch := range rest {
				c.deliver(ch)
			}
		}
	}

	c.mu.Lock()
	c.status = StatusCompleted
	c.metrics.DurationMS = time.Since(c.startedAt).Milliseconds()
	c.mu.Unlock()
	close(c.done)
}

func (c *Controller) runConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			chunk, ok := c.buf.Pop()
			if ok == streambuf.PopEmpty {
				break
			}
			c.deliver(chunk)
		}
	}
}

func (c *Controller) deliver(chunk types.StreamChunk) {
	deliverOne := func(ch types.StreamChunk) {
		defer func() {
			if r := recover(); r != nil {
				c.mu.Lock()
				c.metrics.ConsumerErrors++
				c.mu.Unlock()
			}
		}()
		if err := c.consumer(ch); err != nil {
			c.mu.Lock()
			c.metrics.ConsumerErrors++
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		c.metrics.ChunksDelivered++
		c.metrics.BytesDelivered += uint64(len(ch.Content))
		c.mu.Unlock()
	}

	if c.batch == nil {
		deliverOne(chunk)
		return
	}
	ready := c.batch.AddChunk(chunk)
	for _, ch := range ready {
		deliverOne(ch)
	}
}

// Status returns a snapshot of the lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// GetMetrics returns a snapshot of the controller's metrics.
func (c *Controller) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.metrics
	if m.DurationMS == 0 {
		m.DurationMS = time.Since(c.startedAt).Milliseconds()
	}
	return m
}
