// Package streambuf implements the Stream Buffer (§4.4): a bounded
// single-writer/single-reader FIFO of stream chunks with a configurable
// overflow strategy.
package streambuf

import (
	"sync"

	"github.com/exrt/exllm/pkg/types"
)

// OverflowStrategy decides what happens when Push is called on a full
// buffer.
type OverflowStrategy int

const (
	// DropNewest discards the chunk being pushed.
	DropNewest OverflowStrategy = iota
	// DropOldest evicts the oldest buffered chunk to make room.
	DropOldest
	// Block waits (via a condition variable) until space is available.
	Block
)

// PushResult reports the outcome of a Push.
type PushResult int

const (
	PushOK PushResult = iota
	PushOverflow
)

// PopResult reports the outcome of a Pop.
type PopResult int

const (
	PopOK PopResult = iota
	PopEmpty
)

// Stats are cumulative, monotonic counters.
type Stats struct {
	Pushed  uint64
	Popped  uint64
	Dropped uint64
}

// Buffer is a bounded ring buffer of types.StreamChunk.
type Buffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []types.StreamChunk
	capacity int
	strategy OverflowStrategy
	closed   bool
	stats    Stats
}

// New builds a Buffer with the given capacity and overflow strategy.
func New(capacity int, strategy OverflowStrategy) *Buffer {
	if capacity <= 0 {
		capacity = 100
	}
	b := &Buffer{items: make([]types.StreamChunk, 0, capacity), capacity: capacity, strategy: strategy}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends a chunk, applying the overflow strategy if the buffer
// is at capacity. PushOverflow is returned only for DropNewest (the
// chunk being pushed was the one dropped); DropOldest and Block always
// report PushOK once the chunk is admitted.
func (b *Buffer) Push(c types.StreamChunk) PushResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) >= b.capacity && b.strategy == Block && !b.closed {
		b.cond.Wait()
	}

	if len(b.items) >= b.capacity {
		switch b.strategy {
		case DropNewest:
			b.stats.Dropped++
			return PushOverflow
		case DropOldest:
			b.items = b.items[1:]
			b.stats.Dropped++
		}
	}

	b.items = append(b.items, c)
	b.stats.Pushed++
	b.cond.Broadcast()
	return PushOK
}

// Pop removes and returns the oldest chunk.
func (b *Buffer) Pop() (types.StreamChunk, PopResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return types.StreamChunk{}, PopEmpty
	}
	c := b.items[0]
	b.items = b.items[1:]
	b.stats.Popped++
	b.cond.Broadcast()
	return c, PopOK
}

// Size returns the current number of buffered chunks.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// FillPercentage returns the buffer's occupancy as a fraction of capacity.
func (b *Buffer) FillPercentage() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(len(b.items)) / float64(b.capacity)
}

// Empty reports whether the buffer holds no chunks.
func (b *Buffer) Empty() bool {
	return b.Size() == 0
}

// Stats returns a snapshot of cumulative counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Close unblocks any Block-strategy waiters, e.g. during shutdown.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
