package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5m", 5 * time.Minute, true},
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"30s", 30 * time.Second, true},
		{" 5M ", 5 * time.Minute, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"-1h", 0, false},
		{"5x", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseIntervalDuration(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}

func TestAlignedNextTimes(t *testing.T) {
	s := NewAligned(5*time.Minute, 5*time.Second)
	now := time.Date(2025, 3, 1, 12, 2, 30, 0, time.UTC)

	nextClose, wakeAt, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC), nextClose)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 5, 5, 0, time.UTC), wakeAt)
	assert.Equal(t, 2*time.Minute+35*time.Second, wait)
}

func TestAlignedNextTimesAtBoundary(t *testing.T) {
	s := NewAligned(time.Hour, 0)
	now := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	nextClose, _, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC), nextClose)
	assert.Equal(t, time.Hour, wait)
}

func TestPairLocksSingleFlight(t *testing.T) {
	locks := NewPairLocks()
	key := PairKey("deepseek", "ETH/USDT:USDT")

	release, ok := locks.TryAcquire(key)
	require.True(t, ok)

	_, ok = locks.TryAcquire(key)
	assert.False(t, ok, "second acquire on a busy pair must fail")

	// Other pairs are independent.
	release2, ok := locks.TryAcquire(PairKey("deepseek", "BTC/USDT:USDT"))
	require.True(t, ok)
	release2()

	release()
	release3, ok := locks.TryAcquire(key)
	assert.True(t, ok)
	release3()
}

func TestPairLocksAcquireWaits(t *testing.T) {
	locks := NewPairLocks()
	key := PairKey("m", "ETH/USDT:USDT")

	release, ok := locks.TryAcquire(key)
	require.True(t, ok)

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := locks.Acquire(key)
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while the pair was locked")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not proceed after release")
	}
	wg.Wait()
}
