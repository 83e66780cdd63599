package clock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFake(t *testing.T, duration, interval time.Duration) (*Clock, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	c := New(fc, duration, interval)
	require.NoError(t, c.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// timer + ticker
	require.NoError(t, fc.BlockUntilContext(ctx, 2))
	return c, fc
}

func recvTick(t *testing.T, c *Clock, within time.Duration) time.Duration {
	t.Helper()
	select {
	case d := <-c.Ticks():
		return d
	case <-time.After(within):
		t.Fatalf("timed out waiting for tick")
		return 0
	}
}

func waitDone(t *testing.T, c *Clock, within time.Duration) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(within):
		t.Fatalf("timed out waiting for end")
	}
}

func TestClock_PendingReportsFullDuration(t *testing.T) {
	c := New(clockwork.NewFakeClock(), 5*time.Minute, time.Second)
	assert.Equal(t, PhasePending, c.Phase())
	assert.Equal(t, 5*time.Minute, c.Remaining())
}

func TestClock_StartTwice(t *testing.T) {
	c, _ := startFake(t, time.Minute, time.Second)
	err := c.Start()
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
	assert.Equal(t, PhaseActive, c.Phase())
}

func TestClock_StartAfterEnd(t *testing.T) {
	c := New(clockwork.NewFakeClock(), time.Minute, time.Second)
	require.True(t, c.End())
	if err := c.Start(); !errors.Is(err, ErrEnded) {
		t.Fatalf("want ErrEnded, got %v", err)
	}
}

func TestClock_RemainingFollowsWallClock(t *testing.T) {
	c, fc := startFake(t, 10*time.Second, time.Hour)
	fc.Advance(3500 * time.Millisecond)
	assert.Equal(t, 6500*time.Millisecond, c.Remaining())
	assert.Equal(t, 7, Seconds(c.Remaining()))
}

func TestClock_TicksWhileActive(t *testing.T) {
	c, fc := startFake(t, 2*time.Second, time.Second)

	fc.Advance(time.Second)
	got := recvTick(t, c, time.Second)
	assert.Less(t, got, 2*time.Second)
	assert.Equal(t, 1, Seconds(got))
}

func TestClock_DeadlineEndsOnce(t *testing.T) {
	c, fc := startFake(t, 2*time.Second, time.Second)

	fc.Advance(2 * time.Second)
	waitDone(t, c, time.Second)

	assert.Equal(t, PhaseEnded, c.Phase())
	assert.Equal(t, time.Duration(0), c.Remaining())
	assert.False(t, c.End(), "explicit end after deadline must not transition again")
}

func TestClock_EndStopsTicks(t *testing.T) {
	c, fc := startFake(t, time.Minute, time.Second)
	require.True(t, c.End())

	// drain anything already buffered
	select {
	case <-c.Ticks():
	default:
	}
	fc.Advance(5 * time.Second)

	select {
	case d := <-c.Ticks():
		t.Fatalf("unexpected tick after end: %v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClock_EndRaceIsExactlyOnce(t *testing.T) {
	c, fc := startFake(t, time.Second, time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.End() {
				wins.Add(1)
			}
		}()
	}
	fc.Advance(time.Second)
	wg.Wait()
	waitDone(t, c, time.Second)

	// The deadline may have won, in which case no explicit End did.
	assert.LessOrEqual(t, wins.Load(), int32(1))
	assert.Equal(t, PhaseEnded, c.Phase())
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 0, Seconds(-time.Second))
	assert.Equal(t, 0, Seconds(0))
	assert.Equal(t, 1, Seconds(time.Millisecond))
	assert.Equal(t, 300, Seconds(5*time.Minute))
}
