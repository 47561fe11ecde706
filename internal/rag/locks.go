package rag

import "sync"

// docLocks serializes writes per document id. Operations on different
// documents proceed in parallel; a concurrent upsert and delete of the same
// document must not interleave or the chunk-count invariant could break.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*docLock)}
}

// lock acquires the mutex for id and returns its release function.
func (l *docLocks) lock(id string) func() {
	l.mu.Lock()
	dl, ok := l.locks[id]
	if !ok {
		dl = &docLock{}
		l.locks[id] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()

	return func() {
		dl.mu.Unlock()
		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
