package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestHealthStartsHealthy tests that a fresh tracker passes any threshold
func TestHealthStartsHealthy(t *testing.T) {
	h := NewHealth(DefaultHealthAlpha)
	assert.Equal(t, 100.0, h.SuccessEMA())

	snap := h.Snapshot()
	assert.Equal(t, uint64(0), snap.Attempts)
	assert.Empty(t, snap.LastError)
}

// TestHealthEMADecay tests the success EMA falling under repeated failures
func TestHealthEMADecay(t *testing.T) {
	h := NewHealth(0.1)

	// EMA after k failures from 100 is 100*(0.9)^k.
	for i := 0; i < 11; i++ {
		h.Record(false, 10*time.Millisecond, errors.New("boom"))
	}
	assert.InDelta(t, 31.38, h.SuccessEMA(), 0.01)
	assert.GreaterOrEqual(t, h.SuccessEMA(), 30.0, "Eleven failures should sit just above the default trip floor")

	h.Record(false, 10*time.Millisecond, errors.New("boom"))
	assert.Less(t, h.SuccessEMA(), 30.0, "The twelfth failure should cross the trip floor")
}

// TestHealthEMARecovery tests successes pulling the EMA back up
func TestHealthEMARecovery(t *testing.T) {
	h := NewHealth(0.1)
	for i := 0; i < 12; i++ {
		h.Record(false, time.Millisecond, errors.New("down"))
	}
	floor := h.SuccessEMA()

	for i := 0; i < 3; i++ {
		h.Record(true, time.Millisecond, nil)
	}
	assert.Greater(t, h.SuccessEMA(), floor)
	// 28.24 -> 35.4 -> 41.9 -> 47.7
	assert.InDelta(t, 47.7, h.SuccessEMA(), 0.1)

	snap := h.Snapshot()
	assert.Equal(t, uint64(15), snap.Attempts)
	assert.Equal(t, uint64(3), snap.Successes)
	assert.Equal(t, uint64(12), snap.Failures)
	assert.Empty(t, snap.LastError, "A success should clear the last error")
}

// TestHealthLatencyEMA tests latency smoothing
func TestHealthLatencyEMA(t *testing.T) {
	h := NewHealth(0.1)

	h.Record(true, 100*time.Millisecond, nil)
	assert.Equal(t, 100*time.Millisecond, h.Snapshot().LatencyEMA, "First sample seeds the average")

	h.Record(true, 200*time.Millisecond, nil)
	// 0.1*200 + 0.9*100 = 110ms
	assert.InDelta(t, float64(110*time.Millisecond), float64(h.Snapshot().LatencyEMA), float64(time.Millisecond))
}

// TestHealthLastError tests error bookkeeping
func TestHealthLastError(t *testing.T) {
	h := NewHealth(0.1)
	h.Record(false, time.Millisecond, errors.New("connection refused"))

	snap := h.Snapshot()
	assert.Equal(t, "connection refused", snap.LastError)
	assert.False(t, snap.LastAttempt.IsZero())
}

// TestHealthSuccessAndErrorTimestamps tests that the two timestamps move
// independently: a success clears the last error message but not the time
// the last failure happened
func TestHealthSuccessAndErrorTimestamps(t *testing.T) {
	h := NewHealth(0.1)

	snap := h.Snapshot()
	assert.True(t, snap.LastSuccessAt.IsZero())
	assert.True(t, snap.LastErrorAt.IsZero())

	h.Record(false, time.Millisecond, errors.New("connection refused"))
	snap = h.Snapshot()
	assert.False(t, snap.LastErrorAt.IsZero())
	assert.True(t, snap.LastSuccessAt.IsZero(), "No success has been observed yet")
	erroredAt := snap.LastErrorAt

	h.Record(true, time.Millisecond, nil)
	snap = h.Snapshot()
	assert.False(t, snap.LastSuccessAt.IsZero())
	assert.Equal(t, erroredAt, snap.LastErrorAt, "A success must not touch the failure timestamp")
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.LastSuccessAt.Before(snap.LastErrorAt))
}

// TestHealthConcurrentRecords tests that parallel writers do not race
func TestHealthConcurrentRecords(t *testing.T) {
	h := NewHealth(0.1)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				h.Record(i%2 == 0, time.Millisecond, nil)
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	snap := h.Snapshot()
	assert.Equal(t, uint64(800), snap.Attempts)
	assert.Equal(t, uint64(400), snap.Successes)
}
