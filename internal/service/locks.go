package service

import "sync"

// identityLocks serializes work per identity. Entries are dropped once no
// goroutine holds or waits for them.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*identityLock)}
}

// Lock blocks until identity is free and returns the unlock function.
func (l *identityLocks) Lock(identity string) func() {
	l.mu.Lock()
	lk, ok := l.locks[identity]
	if !ok {
		lk = &identityLock{}
		l.locks[identity] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, identity)
		}
		l.mu.Unlock()
	}
}

// size returns the number of tracked identities.
func (l *identityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
