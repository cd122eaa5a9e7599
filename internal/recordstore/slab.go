package recordstore

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/pwdedup/pwdedup/internal/pwerr"
)

// slab is a page-aligned, file-backed region of fixed size holding a
// sequence of record-bytes terminated by '\n'. used is a bump pointer
// into data; bytes beyond used are unwritten and never read.
type slab struct {
	index uint32
	path  string
	file  *os.File
	data  []byte // mmap'd region, length == capacity
	used  uint32
}

// createSlab opens (creating if absent) the file at {dir}/{zero-padded
// 12-digit index}, truncates it to capacity bytes, and maps it shared
// read/write over its entire range.
func createSlab(dir string, index uint32, capacity uint32) (*slab, error) {
	path := slabPath(dir, index)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, pwerr.New(pwerr.KindOpenFailed, "create slab", path, err)
	}

	if err := f.Truncate(int64(capacity)); err != nil {
		f.Close()
		return nil, pwerr.New(pwerr.KindMapFailed, "truncate slab", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, pwerr.New(pwerr.KindMapFailed, "mmap slab", path, err)
	}

	return &slab{
		index: index,
		path:  path,
		file:  f,
		data:  data,
	}, nil
}

// slabPath composes the on-disk name for a slab: a zero-padded 12-digit
// decimal index within dir.
func slabPath(dir string, index uint32) string {
	return fmt.Sprintf("%s/%012d", dir, index)
}

// append writes bytes followed by '\n' at the current bump pointer and
// advances it. Caller must have already checked capacity via fits.
func (s *slab) append(bytes []byte) Handle {
	offset := s.used
	n := copy(s.data[offset:], bytes)
	s.data[offset+uint32(n)] = '\n'
	s.used = offset + uint32(n) + 1
	return NewHandle(s.index, offset)
}

// fits reports whether n bytes plus the trailing newline fit in the
// slab's remaining space.
func (s *slab) fits(n uint32, capacity uint32) bool {
	return uint64(s.used)+uint64(n)+1 <= uint64(capacity)
}

// get returns the bytes starting at offset up to (excluding) the next
// newline found within the live (used) region of the slab.
func (s *slab) get(offset uint32) []byte {
	end := offset
	for end < s.used && s.data[end] != '\n' {
		end++
	}
	return s.data[offset:end]
}

// close unmaps the slab and closes its file descriptor. The on-disk
// file is left in place; Store.Close removes the whole directory tree.
func (s *slab) close() error {
	var err error
	if s.data != nil {
		if uerr := unix.Munmap(s.data); uerr != nil {
			err = pwerr.New(pwerr.KindMapFailed, "munmap slab", s.path, uerr)
		}
		s.data = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = pwerr.New(pwerr.KindOpenFailed, "close slab", s.path, cerr)
		}
		s.file = nil
	}
	return err
}
