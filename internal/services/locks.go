package services

import "sync"

// invoiceLocks hands out a mutex per invoice id so aggregate-then-
// transition sequences for the same invoice never interleave. Entries
// are reference counted and removed once released; the map does not
// grow with the invoice table. In-process only: the deployment model
// is single-instance, matching the in-memory rate limiter.
type invoiceLocks struct {
	mu    sync.Mutex
	locks map[uint]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{locks: make(map[uint]*refLock)}
}

func (l *invoiceLocks) Lock(id uint) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &refLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Mutex.Lock()
}

func (l *invoiceLocks) Unlock(id uint) {
	l.mu.Lock()
	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	entry.Mutex.Unlock()
}
