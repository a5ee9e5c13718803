package mutex

import "sync"

// KeyedMutex is a set of mutexes addressed by key. Entries live only while
// somebody holds or waits for them.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func (km *KeyedMutex[K]) Lock(key K) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[K]*entry)
	}
	e, ok := km.locks[key]
	if !ok {
		e = &entry{}
		km.locks[key] = e
	}
	e.refs++
	km.mu.Unlock()

	e.mu.Lock()
}

func (km *KeyedMutex[K]) Unlock(key K) {
	km.mu.Lock()
	e, ok := km.locks[key]
	if !ok {
		km.mu.Unlock()
		panic("mutex: unlock of unlocked key")
	}
	e.refs--
	if e.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	e.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (km *KeyedMutex[K]) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}
