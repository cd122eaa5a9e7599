// Package dedupset implements the sharded concurrent hash set that
// decides, for each incoming record, whether it has been seen before.
// Canonical bytes for accepted records live in an internal/recordstore
// Store; the set itself holds only hashes and handles.
package dedupset

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/pwdedup/pwdedup/internal/recordstore"
)

// shardCount is the fixed number of hash chains, 2^20. It is a compile
// time constant so chain selection is a mask, not a modulo.
const shardCount = 1 << 20

type entry struct {
	hash   uint64
	handle recordstore.Handle
}

// chain is one hash bucket: an ordered list of (hash, handle) pairs
// guarded by its own mutex. Chains are independent of one another;
// only mutEx contention within a single chain serializes callers.
type chain struct {
	mu      sync.Mutex
	entries []entry
}

// Set is a fixed-width sharded hash set over byte-string records. Add
// is the only mutating operation: a record is stored at most once,
// and every caller racing to insert the same bytes converges on the
// same handle.
type Set struct {
	chains [shardCount]chain
	store  *recordstore.Store
	count  atomic.Uint64
}

// New returns a Set that stores record bytes in store.
func New(store *recordstore.Store) *Set {
	return &Set{store: store}
}

// Add inserts b if no byte-equal record has been added before,
// returning the record's handle and whether this call was the one
// that inserted it. Concurrent callers inserting the same bytes both
// return the same handle; exactly one of them reports inserted=true.
func (s *Set) Add(b []byte) (handle recordstore.Handle, inserted bool, err error) {
	h := xxhash.Sum64(b)
	c := &s.chains[shardIndex(h)]

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.hash != h {
			continue
		}
		existing, getErr := s.store.Get(e.handle)
		if getErr != nil {
			return 0, false, getErr
		}
		if bytes.Equal(existing, b) {
			return e.handle, false, nil
		}
	}

	handle, err = s.store.Store(b)
	if err != nil {
		return 0, false, err
	}
	c.entries = append(c.entries, entry{hash: h, handle: handle})
	s.count.Add(1)
	return handle, true, nil
}

// Count returns the number of distinct records inserted so far.
func (s *Set) Count() uint64 {
	return s.count.Load()
}

// shardIndex folds a 64-bit digest to 32 bits and masks it down to a
// chain index. shardCount is a power of two, so the mask is exact.
func shardIndex(h uint64) uint32 {
	folded := uint32(h) ^ uint32(h>>32)
	return folded & (shardCount - 1)
}
