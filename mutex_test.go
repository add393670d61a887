package fiberloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutex_LockUnlockRoundTrip(t *testing.T) {
	s := NewScheduler()
	m := NewMutex(s)
	locked := false
	s.CreateFiber(func(f *Fiber) {
		m.Lock()
		locked = true
		m.Unlock()
	}, 0, false)
	s.Run()
	assert.True(t, locked)
}

// TestMutex_TryLockTryUnlockMapping exercises the non-blocking pair: TryLock
// delegates to the semaphore's TryDown, so it succeeds on a
// freshly-constructed, unlocked Mutex and fails while the Mutex is held;
// TryUnlock delegates to TryUp and so fails on an unlocked Mutex (value
// already at max) and succeeds while it is held.
func TestMutex_TryLockTryUnlockMapping(t *testing.T) {
	s := NewScheduler()
	m := NewMutex(s)
	assert.False(t, m.TryUnlock()) // fresh mutex is at max already: TryUp fails
	require.True(t, m.TryLock())
	assert.False(t, m.TryLock()) // already held: TryDown fails at min
	assert.True(t, m.TryUnlock())
}

func TestMutex_SecondLockerBlocksUntilUnlock(t *testing.T) {
	s := NewScheduler()
	m := NewMutex(s)
	var order []int

	s.CreateFiber(func(f *Fiber) {
		m.Lock()
		order = append(order, 1)
	}, 0, false)
	s.CreateFiber(func(f *Fiber) {
		m.Lock()
		order = append(order, 2)
	}, 0, false)

	s.Run()
	// first fiber acquires immediately, second blocks
	assert.Equal(t, []int{1}, order)

	s.CreateFiber(func(f *Fiber) {
		m.Unlock()
	}, 0, false)
	s.Run()
	assert.Equal(t, []int{1, 2}, order)
}
