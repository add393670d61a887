// Package fiberloop is a single-threaded, user-space concurrency runtime:
// cooperatively scheduled fibers (goroutine-backed green threads) multiplexed
// over an epoll/kqueue-semantic [Poller] and a millisecond-resolution
// [IOClock], with a fixed-size worker pool (see [ThreadPool] and [Async])
// for syscalls that have no non-blocking equivalent.
//
// # Architecture
//
// A [Loop] owns exactly one [Scheduler], one [Poller], and one [IOClock].
// Application code runs inside fibers created with [Loop.CreateFiber]; a
// fiber's entry closure issues ordinary blocking-looking calls
// ([Loop.Read], [Event.WaitFor], [Semaphore.Down], [Loop.CallFunction], ...)
// that transparently suspend the calling fiber and resume it once the
// awaited condition is satisfied. At most one fiber is ever Running on a
// given Loop; everything else is Runnable, Suspended, or gone.
//
// # Fibers without a stack-switch primitive
//
// Go exposes no portable setjmp/longjmp equivalent, so a Fiber here is a
// dedicated goroutine whose execution is strictly serialized by a pair of
// rendezvous channels: the Scheduler only ever has one fiber's baton
// channel unblocked at a time. This preserves every invariant the spec
// states about stackful fibers (single Running fiber, FIFO runnable
// ordering, suspend/resume symmetry) without requiring assembly.
//
// # Cancellation
//
// Interruption ([Scheduler.Interrupt]) is delivered as a panic carrying a
// *CancellationError, caught by the fiber's entry trampoline and
// propagated through ordinary deferred cleanup — Go's native analogue of
// the spec's "exception mechanism" substrate.
//
// # Usage
//
//	loop, err := fiberloop.NewLoop()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer loop.Close()
//
//	loop.CreateFiber(func(f *fiberloop.Fiber) {
//		fmt.Println("hello from a fiber")
//	}, 0, false)
//
//	if err := loop.Run(); err != nil {
//		log.Fatal(err)
//	}
package fiberloop
