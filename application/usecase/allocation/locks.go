package allocation

import (
	"sort"
	"sync"
)

// entityLocks hands out one RWMutex per entity id. Writers take both
// participants of an operation in sorted id order so two operations touching
// the same pair can never deadlock; timeline reads take the same locks shared.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*sync.RWMutex)}
}

func (l *entityLocks) get(id string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &sync.RWMutex{}
		l.locks[id] = lk
	}
	return lk
}

func ordered(a, b string) []string {
	if a == b {
		return []string{a}
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return ids
}

// lockPair acquires exclusive locks for both ids and returns the release func
func (l *entityLocks) lockPair(a, b string) func() {
	ids := ordered(a, b)
	for _, id := range ids {
		l.get(id).Lock()
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			l.get(ids[i]).Unlock()
		}
	}
}

// rlockPair acquires shared locks for both ids and returns the release func
func (l *entityLocks) rlockPair(a, b string) func() {
	ids := ordered(a, b)
	for _, id := range ids {
		l.get(id).RLock()
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			l.get(ids[i]).RUnlock()
		}
	}
}
