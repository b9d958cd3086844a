package transfer

import "sync"

// accountLocks serializes work per account. Entries are dropped once unused.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*refLock)}
}

// lock blocks until the account is free and returns the matching unlock.
func (a *accountLocks) lock(accountID string) func() {
	a.mu.Lock()
	l, ok := a.locks[accountID]
	if !ok {
		l = &refLock{}
		a.locks[accountID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, accountID)
		}
		a.mu.Unlock()
	}
}

func (a *accountLocks) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
