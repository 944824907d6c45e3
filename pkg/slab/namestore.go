package slab

import "sync"

// Cookie is an opaque handle into a NameStore, returned by its insert-or-lookup operation
// (spec.md's glossary entry for "Name cookie").
type Cookie uint32

// NameStore is the global deduplicated name store of spec.md §4.8 pass 1: names are keyed by
// (hash, length, bytes) so that identical names collapse to the same Cookie regardless of which
// directory entry or parent-pointer xattr produced them.
//
// Pass 1 (the directory walker) inserts under a single mutex per spec.md §5's concurrency note.
// Pass 2 only looks names up, and does so without locking once the store is frozen.
type NameStore struct {
	mu     sync.Mutex
	frozen bool

	byHash map[uint32][]uint32 // hash -> indices into names, for collision chains
	names  [][]byte
}

// NewNameStore creates an empty name store.
func NewNameStore() *NameStore {
	return &NameStore{byHash: make(map[uint32][]uint32)}
}

// InsertOrLookup returns the Cookie for name, inserting it if this is the first occurrence.
// Safe for concurrent use while the store is not yet frozen.
func (n *NameStore) InsertOrLookup(hash uint32, name []byte) Cookie {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, idx := range n.byHash[hash] {
		if bytesEqual(n.names[idx], name) {
			return Cookie(idx)
		}
	}

	idx := uint32(len(n.names))
	cp := make([]byte, len(name))
	copy(cp, name)
	n.names = append(n.names, cp)
	n.byHash[hash] = append(n.byHash[hash], idx)
	return Cookie(idx)
}

// Freeze marks the store as read-only. After Freeze, Lookup may be called without locking, per
// spec.md §5's "lookups alone in pass 2 require no lock because the store is frozen."
func (n *NameStore) Freeze() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.frozen = true
}

// Lookup returns the name bytes for a Cookie previously returned by InsertOrLookup.
func (n *NameStore) Lookup(c Cookie) []byte {
	if !n.frozen {
		n.mu.Lock()
		defer n.mu.Unlock()
	}
	return n.names[c]
}

// Contains reports whether hash/name is already present, without inserting it. Used by pass 2 to
// set the "name found in global store" flag on a per-file pptr record without mutating the store.
func (n *NameStore) Contains(hash uint32, name []byte) (Cookie, bool) {
	if !n.frozen {
		n.mu.Lock()
		defer n.mu.Unlock()
	}
	for _, idx := range n.byHash[hash] {
		if bytesEqual(n.names[idx], name) {
			return Cookie(idx), true
		}
	}
	return 0, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
