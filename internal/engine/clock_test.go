package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqClock_Monotonic(t *testing.T) {
	c := NewSeqClock()
	assert.Equal(t, int64(0), c.Current())

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestSeqClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewSeqClock()
	const n = 500

	var mu sync.Mutex
	seen := make(map[int64]bool, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := c.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, int64(n), c.Current())
}
