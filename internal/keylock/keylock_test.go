package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLockSerializesSameKey tests that concurrent holders of one key never overlap.
func TestLockSerializesSameKey(t *testing.T) {
	m := New()

	var (
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := m.Lock("node-a")
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)

	// The key is free again once every holder released it.
	unlock := m.Lock("node-a")
	unlock()
}

// TestLockIndependentKeys tests that different keys do not block each other.
func TestLockIndependentKeys(t *testing.T) {
	m := New()

	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
