package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_Frozen(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	// Time does not move on its own
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestFixedClock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())

	clock.Advance(30 * time.Second)
	assert.Equal(t, start.Add(90*time.Minute+30*time.Second), clock.Now())
}

func TestFixedClock_ThreadSafe(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	const numGoroutines = 10
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(time.Second)
				clock.Now()
			}
		}()
	}
	wg.Wait()

	// Every Advance landed exactly once
	expected := start.Add(numGoroutines * callsPerGoroutine * time.Second)
	assert.Equal(t, expected, clock.Now())
}
