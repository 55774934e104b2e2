package locks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("candidate:1", "email:a@example.com")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, k.Len(), "entries are dropped once released")
}

func TestKeyedDifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	unlockA := k.Lock("candidate:a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("candidate:b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedOverlappingSetsDoNotDeadlock(t *testing.T) {
	k := NewKeyed()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := k.Lock("x", "y", "x")
			unlock()
			unlock()
		}()
		go func() {
			defer wg.Done()
			k.Lock("y", "x")()
		}()
	}
	wg.Wait()
	assert.Zero(t, k.Len())
}
