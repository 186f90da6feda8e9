// Package batcher implements the Chunk Batcher (§4.5): accumulates
// stream chunks and signals a flush when either a size or a time
// threshold is crossed.
package batcher

import (
	"sync"
	"time"

	"github.com/exrt/exllm/pkg/types"
)

// Config tunes the batching thresholds.
type Config struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// DefaultConfig batches up to 10 chunks or 50ms, whichever comes first.
func DefaultConfig() Config {
	return Config{BatchSize: 10, BatchTimeout: 50 * time.Millisecond}
}

// Batcher accumulates chunks for a single stream. Every method locks
// an internal mutex, so it is safe for concurrent use; the Flow
// Controller calls it from its consumer worker and from Complete.
type Batcher struct {
	mu          sync.Mutex
	cfg         Config
	pending     []types.StreamChunk
	firstPushAt time.Time
}

// New builds a Batcher.
func New(cfg Config) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultConfig().BatchTimeout
	}
	return &Batcher{cfg: cfg}
}

// AddChunk buffers c. ready is non-nil (the accumulated batch) once
// either BatchSize chunks are buffered or BatchTimeout has elapsed
// since the first chunk of the current batch.
func (b *Batcher) AddChunk(c types.StreamChunk) (ready []types.StreamChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		b.firstPushAt = time.Now()
	}
	b.pending = append(b.pending, c)

	if len(b.pending) >= b.cfg.BatchSize || time.Since(b.firstPushAt) >= b.cfg.BatchTimeout {
		return b.flushLocked()
	}
	return nil
}

// Expired reports whether the current partial batch has aged past
// BatchTimeout, so a caller polling it can Flush a time-triggered batch
// with no new chunk arriving. flowcontrol.Controller does not poll it:
// there, a partial batch is released by the next AddChunk or by Complete.
func (b *Batcher) Expired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) > 0 && time.Since(b.firstPushAt) >= b.cfg.BatchTimeout
}

// Flush returns and clears any partial batch, e.g. when polled after
// Expired reports true, or on stream stop.
func (b *Batcher) Flush() []types.StreamChunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Batcher) flushLocked() []types.StreamChunk {
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}
