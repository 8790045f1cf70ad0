package mds

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := newWorkerPool(2)
	var inFlight, maxSeen int32

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			pool.acquire()
			defer pool.release()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}

func TestWorkerPoolResize(t *testing.T) {
	pool := newWorkerPool(1)
	pool.resize(4)
	for i := 0; i < 4; i++ {
		pool.acquire()
	}
}
