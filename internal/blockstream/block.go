package blockstream

import (
	"golang.org/x/sys/unix"

	"github.com/pwdedup/pwdedup/internal/pwerr"
)

// Block is a read-only, page-aligned memory mapping over a line-aligned
// sub-range of an input file. Text is the sub-slice of the mapping that
// covers whole records only; bytes before it (if the range was rounded
// down to a page boundary) are not part of any record.
type Block struct {
	mapping []byte
	text    []byte
	path    string
}

// Text returns the block's record bytes.
func (b *Block) Text() []byte {
	return b.text
}

// Unmap releases the block's mapping. The worker that consumed the
// block must call this; failing to do so leaks virtual address space
// only, never file descriptors or on-disk state.
func (b *Block) Unmap() error {
	if b.mapping == nil {
		return nil
	}
	err := unix.Munmap(b.mapping)
	b.mapping = nil
	b.text = nil
	if err != nil {
		return pwerr.New(pwerr.KindMapFailed, "munmap block", b.path, err)
	}
	return nil
}
