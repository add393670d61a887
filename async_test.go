package fiberloop

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pumpUntil repeatedly calls DispatchCompleted, waiting briefly between
// calls for the background notifier goroutine to catch up, until cond
// reports done or the deadline passes.
func pumpUntil(t *testing.T, a *Async, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		a.DispatchCompleted()
		time.Sleep(time.Millisecond)
	}
}

func newTestAsync(t *testing.T) (*Scheduler, *ThreadPool, *Async) {
	t.Helper()
	s := NewScheduler()
	p := NewThreadPool(2)
	a, err := NewAsync(s, p)
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
		a.Close()
	})
	return s, p, a
}

func TestAsync_CallReturnsResult(t *testing.T) {
	s, _, a := newTestAsync(t)
	var result any
	var callErr error
	done := false

	s.CreateFiber(func(f *Fiber) {
		result, callErr = a.Call(func() (any, error) { return 7, nil })
		done = true
	}, 0, false)

	s.Run() // fiber blocks in ev.WaitFor()
	require.False(t, done)

	pumpUntil(t, a, func() bool {
		s.Run()
		return done
	})

	assert.NoError(t, callErr)
	assert.Equal(t, 7, result)
}

func TestAsync_CallPropagatesWorkerError(t *testing.T) {
	s, _, a := newTestAsync(t)
	wantErr := errors.New("disk on fire")
	var callErr error
	done := false

	s.CreateFiber(func(f *Fiber) {
		_, callErr = a.Call(func() (any, error) { return nil, wantErr })
		done = true
	}, 0, false)

	s.Run()
	pumpUntil(t, a, func() bool {
		s.Run()
		return done
	})
	assert.ErrorIs(t, callErr, wantErr)
}

func TestAsync_CallPanicsOnWorkerPanic(t *testing.T) {
	s, _, a := newTestAsync(t)
	var recovered any
	done := false

	s.CreateFiber(func(f *Fiber) {
		defer func() {
			recovered = recover()
			done = true
		}()
		a.Call(func() (any, error) { panic("worker exploded") })
	}, 0, false)

	s.Run()
	pumpUntil(t, a, func() bool {
		s.Run()
		return done
	})

	require.NotNil(t, recovered)
	ae, ok := recovered.(*AsyncError)
	require.True(t, ok)
	assert.Equal(t, "worker exploded", ae.Value)
}

func TestAsync_InterruptBeforeTaskStartsCancelsImmediately(t *testing.T) {
	s, p, a := newTestAsync(t)
	// occupy both workers so the real task never gets to run
	block := make(chan struct{})
	_, err := p.Submit(func() (any, error) { <-block; return nil, nil })
	require.NoError(t, err)
	_, err = p.Submit(func() (any, error) { <-block; return nil, nil })
	require.NoError(t, err)

	var target *Fiber
	var caught *CancellationError
	target = s.CreateFiber(func(f *Fiber) {
		defer func() {
			if r := recover(); r != nil {
				if c, ok := r.(*CancellationError); ok {
					caught = c
					return
				}
				panic(r)
			}
		}()
		a.Call(func() (any, error) { return "should never run", nil })
	}, 0, false)

	s.Run() // target blocks in Call, its task queued behind the two blockers
	require.Nil(t, caught)

	target.Interrupt("shutting down")
	s.Run() // nothing left to run: Interrupt already switched into target
	require.NotNil(t, caught)
	assert.Equal(t, "shutting down", caught.Reason)

	close(block)
}
