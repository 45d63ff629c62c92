package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New(10)

	c.Set("payment:abc", "COMPLETED", 0)

	value, ok := c.Get("payment:abc")
	assert.True(t, ok)
	assert.Equal(t, "COMPLETED", value)
}

func TestCache_Get_Missing(t *testing.T) {
	c := New(10)

	value, ok := c.Get("payment:missing")
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10)

	c.Set("payment:abc", "PENDING", 10*time.Millisecond)

	_, ok := c.Get("payment:abc")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("payment:abc")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TTLExpiries)
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(3)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	// Touch "a" so "b" becomes least recently used
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("d", 4, 0)

	_, ok = c.Get("b")
	assert.False(t, ok)

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)

	assert.Equal(t, 3, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_SetOverwritesExisting(t *testing.T) {
	c := New(10)

	c.Set("split:master:s1", "pending", 0)
	c.Set("split:master:s1", "completed", 0)

	value, ok := c.Get("split:master:s1")
	assert.True(t, ok)
	assert.Equal(t, "completed", value)
	assert.Equal(t, 1, c.Size())
}

func TestCache_Delete(t *testing.T) {
	c := New(10)

	c.Set("payment:abc", "PENDING", 0)
	c.Delete("payment:abc")

	_, ok := c.Get("payment:abc")
	assert.False(t, ok)
}

func TestCache_Cleanup(t *testing.T) {
	c := New(10)

	c.Set("expired", 1, time.Millisecond)
	c.Set("alive", 2, time.Hour)

	time.Sleep(5 * time.Millisecond)
	c.Cleanup()

	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("alive")
	assert.True(t, ok)
}

func TestCache_Stats_HitRatio(t *testing.T) {
	c := New(10)

	c.Set("k", 1, 0)

	c.Get("k")
	c.Get("k")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.666, stats.HitRatio, 0.01)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(100)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("payment:%d", j%20)
				c.Set(key, n, time.Minute)
				c.Get(key)
			}
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.LessOrEqual(t, c.Size(), 100)
}
