package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_EvictionOrder(t *testing.T) {
	const capacity, extra = 5, 3
	c := New[string, int](capacity, 0, nil)

	for i := 0; i < capacity+extra; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	// with no intervening Get, exactly the `extra` earliest-inserted keys
	// are gone
	for i := 0; i < extra; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.False(t, ok, "k%d should be evicted", i)
	}
	for i := extra; i < capacity+extra; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d should survive", i)
	}
}

func TestCache_GetProtectsFromEviction(t *testing.T) {
	c := New[string, int](3, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a") // refresh recency; "b" becomes the LRU victim
	assert.True(t, ok)

	c.Put("d", 4)
	_, ok = c.Get("a")
	assert.True(t, ok, "recently accessed key must not be the next victim")
	_, ok = c.Get("b")
	assert.False(t, ok, "b was the least recently used entry")
}

func TestCache_ByteBudget(t *testing.T) {
	sizer := func(k string, v []byte) int { return len(k) + len(v) }
	c := New[string, []byte](0, 100, sizer)

	c.Put("a", make([]byte, 49)) // 50 bytes
	c.Put("b", make([]byte, 49)) // 50 bytes, at budget
	assert.Equal(t, 2, c.Len())

	c.Put("c", make([]byte, 49)) // evicts "a"
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Evictions)
	assert.LessOrEqual(t, st.Bytes, 100)
}

func TestCache_ReplaceDoesNotGrow(t *testing.T) {
	c := New[string, int](2, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)
	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("b")
	assert.True(t, ok, "replace must not evict the other entry")
}

func TestCache_Stats(t *testing.T) {
	c := New[string, int](4, 0, nil)
	assert.Equal(t, 0.0, c.Stats().HitRate, "no accesses yet")

	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	st := c.Stats()
	assert.Equal(t, uint64(2), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-9)
	assert.Equal(t, 1, st.Entries)
}

func TestCache_Remove(t *testing.T) {
	c := New[string, int](4, 0, nil)
	c.Put("a", 1)
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)
}
