package index

import (
	"sync"

	"github.com/poiesic/marketsearch/core"
)

// KindLocks serializes rebuilds per source kind.
// Ordinary index and deindex calls never take these locks.
// The zero value is ready to use.
type KindLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *KindLocks) get(kind string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	kind = core.NormalizeKind(kind)
	m, ok := l.locks[kind]
	if !ok {
		m = &sync.Mutex{}
		l.locks[kind] = m
	}
	return m
}

// Lock blocks until the kind is free and returns the unlock function.
func (l *KindLocks) Lock(kind string) func() {
	m := l.get(kind)
	m.Lock()
	return m.Unlock
}

// TryLock acquires the kind without blocking.
// It reports false when another rebuild holds it.
func (l *KindLocks) TryLock(kind string) (func(), bool) {
	m := l.get(kind)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
