package escrow

import "sync"

type keyedMutex struct {
	mu    sync.Mutex
	locks map[Key]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock serialises callers on key and returns the matching unlock function.
func (k *keyedMutex) Lock(key Key) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[Key]*keyedEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
