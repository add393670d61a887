package fiberloop

// Mutex is a binary lock built directly on Semaphore(1, 0, 1), exactly as
// the original runtime defines it (spec §3 "Mutex", §4.2). There is no
// separate owner/recursion tracking: a Mutex is just a Semaphore whose two
// states happen to mean "unlocked" and "locked".
type Mutex struct {
	sem *Semaphore
}

// NewMutex creates an unlocked Mutex bound to scheduler.
func NewMutex(scheduler *Scheduler) *Mutex {
	return &Mutex{sem: NewSemaphore(scheduler, 1, 0, 1)}
}

// Lock blocks the calling fiber until the mutex is available, then takes it.
func (m *Mutex) Lock() {
	m.sem.Down()
}

// Unlock releases the mutex, waking the longest-waiting Lock call if any.
func (m *Mutex) Unlock() {
	m.sem.Up()
}

// TryLock acquires the mutex without blocking, reporting whether it
// succeeded. It is the semaphore's TryDown, the non-blocking form of the
// Down that Lock uses: "locked" is semaphore value 0 and "available" is
// value 1.
func (m *Mutex) TryLock() bool {
	return m.sem.TryDown()
}

// TryUnlock releases the mutex without blocking (it never needs to block),
// reporting whether it was actually held. It is the semaphore's TryUp, the
// non-blocking form of the Up that Unlock uses.
func (m *Mutex) TryUnlock() bool {
	return m.sem.TryUp()
}
