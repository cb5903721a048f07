package accounts

import "sync"

// handleLocks hands out one mutex per handle so read-modify-write cycles
// on the same account never interleave. Entries are dropped once no
// goroutine holds or waits for them.
type handleLocks struct {
	mu    sync.Mutex
	locks map[string]*handleLock
}

type handleLock struct {
	sync.Mutex
	refs int
}

func newHandleLocks() *handleLocks {
	return &handleLocks{locks: make(map[string]*handleLock)}
}

// Lock blocks until handle is free and returns the matching unlock func
func (l *handleLocks) Lock(handle string) func() {
	l.mu.Lock()
	lock, ok := l.locks[handle]
	if !ok {
		lock = &handleLock{}
		l.locks[handle] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, handle)
		}
		l.mu.Unlock()
	}
}

func (l *handleLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
