package utils

import "sync"

// KeyedMutex serializes work per string key. Operations against one
// mailbox item take the (mailbox, item) key so a direct edit and a
// concurrently delivered meeting message can't race each other; distinct
// items proceed independently.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedMutexEntry)}
}

// Lock blocks until the key is free and returns the matching unlock.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedMutexEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// ItemKey builds the canonical per-item lock key.
func ItemKey(mailboxID, itemID string) string {
	return mailboxID + "/" + itemID
}
