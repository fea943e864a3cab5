package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityLocksSerializeSameIdentity(t *testing.T) {
	l := newIdentityLocks()
	var inside, maxInside atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("a@x.com")
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.size())
}

func TestIdentityLocksIndependentIdentities(t *testing.T) {
	l := newIdentityLocks()
	unlockA := l.Lock("a@x.com")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b@x.com")
		unlock()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, l.size())
}
