package fiberloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIOClock_DueTimeEmpty(t *testing.T) {
	c := NewIOClock()
	assert.Equal(t, time.Duration(-1), c.GetDueTime())
}

func TestIOClock_AddTimerOrdersByExpiry(t *testing.T) {
	c := NewIOClock()
	var fired []int

	c.AddTimer(30*time.Millisecond, func() { fired = append(fired, 30) })
	c.AddTimer(10*time.Millisecond, func() { fired = append(fired, 10) })
	c.AddTimer(20*time.Millisecond, func() { fired = append(fired, 20) })

	// the heap's top (and so GetDueTime) always reflects the
	// earliest-expiring timer, regardless of insertion order.
	assert.Equal(t, 10*time.Millisecond, c.GetDueTime())
}

func TestIOClock_RemoveTimer(t *testing.T) {
	c := NewIOClock()
	fired := false
	timer := c.AddTimer(5*time.Millisecond, func() { fired = true })
	c.RemoveTimer(timer)

	// advance now past the would-be expiry using Start/Stop on a real,
	// tiny sleep so due-time accounting is exercised end to end.
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()

	expired := c.GetExpiredTimers()
	assert.Empty(t, expired)
	assert.False(t, fired)
}

func TestIOClock_NegativeIntervalNeverExpires(t *testing.T) {
	c := NewIOClock()
	timer := c.AddTimer(-1, func() {})
	assert.Equal(t, infiniteExpiry, timer.expiry)

	// a never-expiring timer is still the heap's top, so due time is
	// enormous rather than -1 (an empty heap is the only -1 case).
	assert.Greater(t, c.GetDueTime(), time.Hour)
	c.RemoveTimer(timer)
	assert.Equal(t, time.Duration(-1), c.GetDueTime())
}

func TestIOClock_StartStopAccumulatesOnlyWhileRunning(t *testing.T) {
	c := NewIOClock()
	before := c.Now()
	c.Start()
	time.Sleep(15 * time.Millisecond)
	c.Stop()
	after := c.Now()
	assert.Greater(t, after, before)
	assert.GreaterOrEqual(t, after, 10*time.Millisecond)

	// idle time between Stop and the next Start doesn't count
	snapshot := c.Now()
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, snapshot, c.Now())
}

func TestIOClock_ExpiredTimersFireInOrder(t *testing.T) {
	c := NewIOClock()
	var order []int
	c.AddTimer(0, func() { order = append(order, 1) })
	c.AddTimer(0, func() { order = append(order, 2) })
	c.AddTimer(0, func() { order = append(order, 3) })

	due := c.GetDueTime()
	require.Equal(t, time.Duration(0), due)

	expired := c.GetExpiredTimers()
	require.Len(t, expired, 3)
	for _, timer := range expired {
		timer.callback()
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}
