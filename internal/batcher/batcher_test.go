package batcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/pkg/types"
)

func TestBatcher_FlushesOnSize(t *testing.T) {
	b := New(Config{BatchSize: 3, BatchTimeout: time.Hour})

	assert.Nil(t, b.AddChunk(types.StreamChunk{Content: "a"}))
	assert.Nil(t, b.AddChunk(types.StreamChunk{Content: "b"}))
	ready := b.AddChunk(types.StreamChunk{Content: "c"})

	require.Len(t, ready, 3)
	assert.Equal(t, "a", ready[0].Content)
	assert.Equal(t, "c", ready[2].Content)
}

func TestBatcher_FlushesOnTimeout(t *testing.T) {
	b := New(Config{BatchSize: 100, BatchTimeout: 5 * time.Millisecond})

	assert.Nil(t, b.AddChunk(types.StreamChunk{Content: "a"}))
	time.Sleep(10 * time.Millisecond)
	ready := b.AddChunk(types.StreamChunk{Content: "b"})

	require.Len(t, ready, 2)
}

func TestBatcher_FlushOnStopReturnsPartial(t *testing.T) {
	b := New(Config{BatchSize: 100, BatchTimeout: time.Hour})

	b.AddChunk(types.StreamChunk{Content: "a"})
	b.AddChunk(types.StreamChunk{Content: "b"})

	ready := b.Flush()
	require.Len(t, ready, 2)
	assert.Nil(t, b.Flush()) // drained
}
