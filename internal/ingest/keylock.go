package ingest

import "sync"

// keyLock serialises work per key. Entries are removed once no goroutine
// holds or waits on them.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

// lock blocks until key is free and returns the matching unlock func.
func (k *keyLock) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyLockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return k.unlocker(key, e)
}

// tryLock is lock without waiting. It reports false if key is held.
func (k *keyLock) tryLock(key string) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.locks[key]
	if !ok {
		e = &keyLockEntry{}
		k.locks[key] = e
	}
	if !e.mu.TryLock() {
		return nil, false
	}
	e.refs++

	return k.unlocker(key, e), true
}

func (k *keyLock) unlocker(key string, e *keyLockEntry) func() {
	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
