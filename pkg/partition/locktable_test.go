package partition

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTableExclusion(t *testing.T) {
	lt := NewLockTable()
	lt.Lock("a")
	assert.True(t, lt.IsLocked("a"))
	lt.Unlock("a")
	assert.False(t, lt.IsLocked("a"))
}

func TestLockTableFIFOHandoff(t *testing.T) {
	lt := NewLockTable()
	lt.Lock("a")

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lt.Lock("a")
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			lt.Unlock("a")
		}(i)
		time.Sleep(5 * time.Millisecond) // encourage waiters to queue in launch order
	}

	lt.Unlock("a")
	wg.Wait()

	require.Len(t, order, 3)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestLockTableWithLock(t *testing.T) {
	lt := NewLockTable()
	err := lt.WithLock("x", func() error {
		assert.True(t, lt.IsLocked("x"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, lt.IsLocked("x"))
}
