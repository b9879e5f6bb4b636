package provisioning

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock("a")
	assert.Equal(t, 1, k.size())

	// Other keys are independent.
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockB()

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key did not block")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	unlock() // second call is a no-op
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Lock was not released")
	}

	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestKeyedMutex_Serialises(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("shared")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, k.size())
}
