package retrieval

import "sync/atomic"

// PurgeLock is a non-blocking lock that keeps purges from overlapping.
// A purge that finds the lock held fails fast with ErrPurgeInProgress.
type PurgeLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *PurgeLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *PurgeLock) Release() {
	l.state.Store(0)
}
