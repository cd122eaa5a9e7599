// Package recordstore implements the append-only string store: a
// paged, bump-allocated, file-backed region that owns the canonical
// bytes of every unique record and addresses them by compact 64-bit
// handles.
package recordstore

import (
	"io"
	"os"
	"sync"

	"github.com/pwdedup/pwdedup/internal/pwerr"
)

// DefaultSlabBytes is 64 pages at a 4KiB page size (256KiB), matching
// the reference slab size.
const DefaultSlabBytes = 64 * 4096

// Store owns a directory of slabs and the bump-allocator state of the
// current tail slab. All mutation is serialized by mu, matching the
// spec's store-wide append mutex — the sharded set never holds more
// than one chain mutex plus this one at a time.
type Store struct {
	mu         sync.Mutex
	dir        string
	slabBytes  uint32
	slabs      []*slab
	nextIndex  uint32
	closed     bool
}

// New creates a Store rooted at dir, creating intermediate directories
// as needed. The directory is used exclusively by this Store instance.
func New(dir string, slabBytes uint32) (*Store, error) {
	if slabBytes == 0 {
		slabBytes = DefaultSlabBytes
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, pwerr.New(pwerr.KindOpenFailed, "create store directory", dir, err)
	}
	return &Store{
		dir:       dir,
		slabBytes: slabBytes,
	}, nil
}

// Store appends bytes followed by '\n' to the current tail slab,
// allocating a new slab if the tail cannot fit the record. It returns
// a Handle identifying the start of the record's bytes.
func (s *Store) Store(bytes []byte) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, pwerr.New(pwerr.KindOpenFailed, "store record", s.dir, nil)
	}

	n := uint32(len(bytes))
	if uint64(n)+1 > uint64(s.slabBytes) {
		return 0, pwerr.New(pwerr.KindTooLarge, "store record", s.dir, nil)
	}

	tail := s.tail()
	if tail == nil || !tail.fits(n, s.slabBytes) {
		newSlab, err := createSlab(s.dir, s.nextIndex, s.slabBytes)
		if err != nil {
			return 0, err
		}
		s.nextIndex++
		s.slabs = append(s.slabs, newSlab)
		tail = newSlab
	}

	return tail.append(bytes), nil
}

// Get returns the bytes addressed by handle: from its byte offset to
// the next newline within that handle's slab.
func (s *Store) Get(handle Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := handle.SlabIndex()
	if int(idx) >= len(s.slabs) {
		return nil, pwerr.New(pwerr.KindUnknown, "resolve handle", s.dir, nil)
	}
	return s.slabs[idx].get(handle.ByteOffset()), nil
}

// Dump writes the live bytes of every slab, in slab order, to w. Since
// every record was terminated with '\n' at store time, the result is a
// valid newline-delimited file whose records are exactly the distinct
// inserted records.
func (s *Store) Dump(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, sl := range s.slabs {
		n, err := w.Write(sl.data[:sl.used])
		total += int64(n)
		if err != nil {
			return total, pwerr.New(pwerr.KindOpenFailed, "dump store", s.dir, err)
		}
	}
	return total, nil
}

// Close unmaps and closes every slab, deletes the store's temp
// directory tree, and marks the store unusable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, sl := range s.slabs {
		if err := sl.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.slabs = nil

	if err := os.RemoveAll(s.dir); err != nil && firstErr == nil {
		firstErr = pwerr.New(pwerr.KindOpenFailed, "remove store directory", s.dir, err)
	}
	return firstErr
}

// tail returns the current tail slab, or nil if none exists yet.
// Caller must hold mu.
func (s *Store) tail() *slab {
	if len(s.slabs) == 0 {
		return nil
	}
	return s.slabs[len(s.slabs)-1]
}

// SlabBytes returns the configured slab size.
func (s *Store) SlabBytes() uint32 {
	return s.slabBytes
}

// SlabCount returns the number of slabs allocated so far.
func (s *Store) SlabCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slabs)
}
