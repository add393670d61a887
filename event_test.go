package fiberloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_TriggerWakesAllWaiters(t *testing.T) {
	s := NewScheduler()
	ev := NewEvent(s)
	var woke []int

	for i := 0; i < 3; i++ {
		i := i
		s.CreateFiber(func(f *Fiber) {
			ev.WaitFor()
			woke = append(woke, i)
		}, 0, false)
	}

	s.Run() // all three fibers block in WaitFor
	assert.Empty(t, woke)
	assert.True(t, ev.HasWaiters())

	ev.Trigger()
	s.Run()
	assert.ElementsMatch(t, []int{0, 1, 2}, woke)
	assert.False(t, ev.HasWaiters())
}

func TestEvent_TriggerWithNoWaitersIsANoOp(t *testing.T) {
	s := NewScheduler()
	ev := NewEvent(s)
	assert.NotPanics(t, func() { ev.Trigger() })
	assert.False(t, ev.HasWaiters())
}

func TestEvent_WaitForBlocksUntilNextTrigger(t *testing.T) {
	s := NewScheduler()
	ev := NewEvent(s)
	done := false
	s.CreateFiber(func(f *Fiber) {
		ev.WaitFor()
		done = true
	}, 0, false)

	s.Run()
	assert.False(t, done)

	// Trigger only makes the waiter runnable; it does not run until the
	// scheduler runs again
	ev.Trigger()
	assert.False(t, done)
}

func TestEvent_RemovedWaiterOnInterrupt(t *testing.T) {
	s := NewScheduler()
	ev := NewEvent(s)
	var target *Fiber
	target = s.CreateFiber(func(f *Fiber) {
		defer func() { recover() }()
		ev.WaitFor()
	}, 0, false)

	s.Run()
	assert.True(t, ev.HasWaiters())
	target.Interrupt("done waiting")
	assert.False(t, ev.HasWaiters())
}
