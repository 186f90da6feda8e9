// Package recovery implements Stream Recovery (§4.8): an append-only,
// per-recovery-id chunk log that lets a caller reconstruct a partial
// response after a dropped connection.
package recovery

import (
	"container/heap"
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exrt/exllm/pkg/types"
)

// Meta is the immutable request shape a recovery id was opened for.
type Meta struct {
	Provider string
	Messages []types.Message
	Options  types.Options
}

// Config tunes the store's eviction policy. Either bound can fire
// first: a record is evicted once MaxRecords is exceeded (LRU) or once
// its age exceeds TTL, whichever happens sooner.
type Config struct {
	MaxRecords      int
	TTL             time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig bounds the store at 10,000 live recovery ids with a
// 30 minute TTL, swept every minute.
func DefaultConfig() Config {
	return Config{
		MaxRecords:      10_000,
		TTL:             30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

type record struct {
	id        string
	meta      Meta
	mu        sync.RWMutex
	chunks    []types.StreamChunk
	expiresAt time.Time
	lruElem   *list.Element // owned by Store.mu
}

// heapEntry mirrors a record's expiry in the TTL min-heap.
type heapEntry struct {
	id        string
	expiresAt time.Time
	index     int
}

type expirationHeap []*heapEntry

func (h expirationHeap) Len() int            { return len(h) }
func (h expirationHeap) Less(i, j int) bool  { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expirationHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *expirationHeap) Push(x any)         { e := x.(*heapEntry); e.index = len(*h); *h = append(*h, e) }
func (h *expirationHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Store is the global recovery record table. A record's own mutex
// guards its chunk log, so concurrent writers/readers on one id never
// block writers/readers on another.
type Store struct {
	mu       sync.Mutex
	records  map[string]*record
	expHeap  expirationHeap
	lru      *list.List // front = most recently touched
	cfg      Config
	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a Store and starts its background sweeper.
func New(cfg Config) *Store {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultConfig().MaxRecords
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	s := &Store{
		records: make(map[string]*record),
		lru:     list.New(),
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	heap.Init(&s.expHeap)
	go s.sweepLoop()
	return s
}

// Close stops the background sweeper.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) sweepLoop() {
	t := time.NewTicker(s.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

// InitRecovery opens a new recovery id for the given request shape.
// Ids are unique even across identical inputs.
func (s *Store) InitRecovery(meta Meta) string {
	id := uuid.NewString()
	r := &record{
		id:        id,
		meta:      meta,
		expiresAt: time.Now().Add(s.cfg.TTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.lruElem = s.lru.PushFront(id)
	s.records[id] = r
	heap.Push(&s.expHeap, &heapEntry{id: id, expiresAt: r.expiresAt})
	s.evictIfOverCapLocked()
	return id
}

// RecordChunk appends chunk to id's log. Nil/empty chunks (no content,
// no finish reason, no tool calls) are silently ignored. Unknown ids
// are silently ignored: a caller racing a concurrent ClearPartialResponse
// should not error.
func (s *Store) RecordChunk(id string, chunk types.StreamChunk) {
	if chunk.Content == "" && chunk.FinishReason == "" && len(chunk.ToolCalls) == 0 {
		return
	}

	s.mu.Lock()
	r, ok := s.records[id]
	if ok {
		s.lru.MoveToFront(r.lruElem)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.mu.Unlock()
}

// GetPartialResponse returns a copy of id's chunk log so far, or
// ok=false if the id is unknown or has been evicted.
func (s *Store) GetPartialResponse(id string) (chunks []types.StreamChunk, ok bool) {
	s.mu.Lock()
	r, found := s.records[id]
	if found {
		s.lru.MoveToFront(r.lruElem)
	}
	s.mu.Unlock()
	if !found {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.StreamChunk, len(r.chunks))
	copy(out, r.chunks)
	return out, true
}

// ClearPartialResponse discards id's record entirely.
func (s *Store) ClearPartialResponse(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Store) removeLocked(id string) {
	r, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)
	s.lru.Remove(r.lruElem)
}

// evictIfOverCapLocked drops the least-recently-touched record once
// the store exceeds MaxRecords. Caller holds s.mu.
func (s *Store) evictIfOverCapLocked() {
	for len(s.records) > s.cfg.MaxRecords {
		back := s.lru.Back()
		if back == nil {
			return
		}
		id := back.Value.(string)
		s.removeLocked(id)
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for s.expHeap.Len() > 0 {
		top := s.expHeap[0]
		r, live := s.records[top.id]
		if !live || r.expiresAt != top.expiresAt {
			heap.Pop(&s.expHeap)
			continue
		}
		if !top.expiresAt.After(now) {
			heap.Pop(&s.expHeap)
			s.removeLocked(top.id)
			continue
		}
		break
	}
}

// Len reports the number of live recovery ids. For tests/metrics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
