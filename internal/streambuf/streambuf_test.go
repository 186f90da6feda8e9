package streambuf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exrt/exllm/pkg/types"
)

func TestBuffer_DropNewestOnFull(t *testing.T) {
	b := New(2, DropNewest)

	assert.Equal(t, PushOK, b.Push(types.StreamChunk{Content: "a"}))
	assert.Equal(t, PushOK, b.Push(types.StreamChunk{Content: "b"}))
	assert.Equal(t, PushOverflow, b.Push(types.StreamChunk{Content: "c"}))

	assert.Equal(t, 2, b.Size())
	assert.Equal(t, uint64(1), b.Stats().Dropped)
}

func TestBuffer_DropOldestOnFull(t *testing.T) {
	b := New(2, DropOldest)

	b.Push(types.StreamChunk{Content: "a"})
	b.Push(types.StreamChunk{Content: "b"})
	res := b.Push(types.StreamChunk{Content: "c"})

	assert.Equal(t, PushOK, res)
	assert.Equal(t, 2, b.Size())
	first, ok := b.Pop()
	assert.Equal(t, PopOK, ok)
	assert.Equal(t, "b", first.Content)
}

func TestBuffer_FIFOOrderAndStats(t *testing.T) {
	b := New(10, DropNewest)
	for _, s := range []string{"a", "b", "c"} {
		b.Push(types.StreamChunk{Content: s})
	}

	var got []string
	for {
		c, ok := b.Pop()
		if ok == PopEmpty {
			break
		}
		got = append(got, c.Content)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	stats := b.Stats()
	assert.Equal(t, uint64(3), stats.Pushed)
	assert.Equal(t, uint64(3), stats.Popped)
}

func TestBuffer_FillPercentageAndEmpty(t *testing.T) {
	b := New(4, DropNewest)
	assert.True(t, b.Empty())

	b.Push(types.StreamChunk{})
	b.Push(types.StreamChunk{})

	assert.InDelta(t, 0.5, b.FillPercentage(), 0.0001)
	assert.False(t, b.Empty())
}
