package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	c := New(Options[string, string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Stats().Length)

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	val, found = c.Get("b")
	require.True(t, found)
	assert.Equal(t, "value_b", val)
}

func TestLRU_Eviction(t *testing.T) {
	c := New(Options[string, int]{MaxSize: 3})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", 4)

	assert.Equal(t, 3, c.Stats().Length)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")

	for _, k := range []string{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, "%s should still be present", k)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRU_Unlimited(t *testing.T) {
	c := New(Options[int, int]{})
	for i := 0; i < 1000; i++ {
		c.Set(i, i*i)
	}
	assert.Equal(t, 1000, c.Stats().Length)
}

func TestLRU_Update(t *testing.T) {
	c := New(Options[string, string]{MaxSize: 10})

	c.Set("a", "value1")
	c.Set("a", "value2")

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value2", val)

	assert.Equal(t, 1, c.Stats().Length)
}

func TestLRU_Stats(t *testing.T) {
	c := New(Options[string, string]{MaxSize: 10})

	c.Set("key1", "value1")
	c.Get("key1")
	c.Get("key2")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Length)
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.Equal(t, 0.5, stats.HitRate())
	assert.Zero(t, Stats{}.HitRate())
}

func TestLRU_GetOrCompute(t *testing.T) {
	c := New(Options[string, int]{MaxSize: 10})
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err = c.GetOrCompute("other", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, found := c.Get("other")
	assert.False(t, found)
}

func TestLRU_Concurrent(t *testing.T) {
	c := New(Options[string, int]{MaxSize: 64})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%100)
				c.Set(key, w)
				c.Get(key)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Length, 64)
}
