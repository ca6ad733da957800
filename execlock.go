package gocbbridge

import (
	"sync"
)

// executionLock wraps the caller's ambient execution lock, if any. Callers of the
// blocking and submitting entry points hold it; the bridge gives it up while it waits on
// the native layer and takes it back before it touches caller visible state.
type executionLock struct {
	locker sync.Locker
}

func newExecutionLock(locker sync.Locker) executionLock {
	return executionLock{locker: locker}
}

// relinquish releases the lock and returns the guard that takes it back. The usual form
// is `defer lock.relinquish()()`, or an explicit call where the scope is narrower.
func (l executionLock) relinquish() func() {
	if l.locker == nil {
		return func() {}
	}

	l.locker.Unlock()
	var once sync.Once
	return func() {
		once.Do(l.locker.Lock)
	}
}

// hold acquires the lock from a goroutine which does not own it, such as a native
// completion running a caller continuation, and returns the guard that releases it.
func (l executionLock) hold() func() {
	if l.locker == nil {
		return func() {}
	}

	l.locker.Lock()
	var once sync.Once
	return func() {
		once.Do(l.locker.Unlock)
	}
}
