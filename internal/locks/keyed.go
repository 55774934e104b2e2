// Package locks provides a mutex per string key.
package locks

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out one mutex per key. Entries are dropped when no goroutine
// holds or waits for them, so the map only grows with live contention.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock acquires every key in sorted order and returns the release func.
// Duplicate keys are acquired once.
func (k *Keyed) Lock(keys ...string) (unlock func()) {
	sorted := dedup(keys)
	held := make([]*entry, 0, len(sorted))
	for _, key := range sorted {
		e := k.acquire(key)
		e.mu.Lock()
		held = append(held, e)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				k.release(sorted[i])
			}
		})
	}
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func dedup(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" && !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// CandidateKey guards every write to one candidate.
func CandidateKey(id string) string { return "candidate:" + id }

// IdentityKey guards creation of candidates sharing an email, phone or name.
func IdentityKey(kind, value string) string { return "identity:" + kind + ":" + value }

// FingerprintKey guards concurrent uploads of the same resume.
func FingerprintKey(fp string) string { return "fingerprint:" + fp }
