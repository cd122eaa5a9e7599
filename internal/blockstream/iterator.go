// Package blockstream turns a list of input file paths into a single,
// thread-safe stream of memory-mapped, line-aligned Block values.
package blockstream

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/pwdedup/pwdedup/internal/pwerr"
)

type fileRange struct {
	offset int64
	length int64
}

// Iterator hands out Block values one at a time under a mutex. Blocks
// are delivered in file-listed order between files and in increasing
// offset within a file; concurrent callers may interleave adjacent
// blocks in either order relative to each other once returned.
type Iterator struct {
	mu sync.Mutex

	paths    []string
	pathIdx  int
	sizeHint int64
	pageSize int64

	curFile  *os.File
	curPath  string
	ranges   []fileRange
	rangeIdx int
}

// New constructs an Iterator over paths using sizeHint-aligned probe
// scanning to find block boundaries. sizeHint must be a whole multiple
// of the system page size.
func New(paths []string, sizeHint int64) (*Iterator, error) {
	pageSize := int64(os.Getpagesize())
	if sizeHint <= 0 || sizeHint%pageSize != 0 {
		return nil, pwerr.New(pwerr.KindBadSizeHintAlignment, "construct block iterator", "", nil)
	}
	paths = append([]string(nil), paths...)
	return &Iterator{
		paths:    paths,
		sizeHint: sizeHint,
		pageSize: pageSize,
	}, nil
}

// Next returns the next Block in the stream, or (nil, nil) at end of
// stream. It is safe to call concurrently from multiple workers.
func (it *Iterator) Next() (*Block, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	for {
		if it.curFile != nil && it.rangeIdx < len(it.ranges) {
			r := it.ranges[it.rangeIdx]
			it.rangeIdx++
			return it.mapRange(r)
		}

		if it.curFile != nil {
			it.curFile.Close()
			it.curFile = nil
			it.ranges = nil
			it.rangeIdx = 0
		}

		if it.pathIdx >= len(it.paths) {
			return nil, nil
		}

		path := it.paths[it.pathIdx]
		it.pathIdx++

		f, err := os.Open(path)
		if err != nil {
			return nil, pwerr.New(pwerr.KindOpenFailed, "open input", path, err)
		}

		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, pwerr.New(pwerr.KindOpenFailed, "stat input", path, err)
		}

		ranges, err := scanBlockRanges(f, info.Size(), it.sizeHint, it.pageSize)
		if err != nil {
			f.Close()
			return nil, pwerr.New(pwerr.KindMapFailed, "scan input", path, err)
		}

		it.curFile = f
		it.curPath = path
		it.ranges = ranges
		it.rangeIdx = 0
	}
}

// mapRange maps r over the current file, rounding its offset down to
// the nearest page boundary and exposing text as the requested
// sub-range within the mapping.
func (it *Iterator) mapRange(r fileRange) (*Block, error) {
	alignedOffset := alignDown(r.offset, it.pageSize)
	diff := r.offset - alignedOffset
	mapLen := diff + r.length

	if mapLen == 0 {
		return &Block{path: it.curPath}, nil
	}

	mapping, err := unix.Mmap(int(it.curFile.Fd()), alignedOffset, int(mapLen), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, pwerr.New(pwerr.KindMapFailed, "mmap block", it.curPath, err)
	}

	return &Block{
		mapping: mapping,
		text:    mapping[diff : diff+r.length],
		path:    it.curPath,
	}, nil
}

// scanBlockRanges decides block boundaries by scanning with sizeHint-
// sized probe mappings, choosing the last newline at or before each
// sizeHint-aligned offset as the end of a logical block. The final
// range of the file (or the whole file, if it has no newline) ends at
// EOF regardless of newline placement.
func scanBlockRanges(f *os.File, fileSize, sizeHint, pageSize int64) ([]fileRange, error) {
	var ranges []fileRange
	start := int64(0)
	for start < fileSize {
		end, err := findBlockEnd(f, start, fileSize, sizeHint, pageSize)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, fileRange{offset: start, length: end - start})
		start = end
	}
	return ranges, nil
}

// findBlockEnd finds the end of the block starting at start: the last
// newline at or before start+sizeHint. If the line starting at start
// extends past start+sizeHint (a record longer than the window), the
// probe widens until a newline is found or EOF is reached, per the
// spec's "widen the range" policy for long lines.
func findBlockEnd(f *os.File, start, fileSize, sizeHint, pageSize int64) (int64, error) {
	target := start + sizeHint
	if target >= fileSize {
		return fileSize, nil
	}

	probeBytes := sizeHint
	for {
		mapEnd := start + probeBytes
		if mapEnd > fileSize {
			mapEnd = fileSize
		}

		alignedStart := alignDown(start, pageSize)
		mapLen := mapEnd - alignedStart

		mapping, err := unix.Mmap(int(f.Fd()), alignedStart, int(mapLen), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return 0, pwerr.New(pwerr.KindMapFailed, "probe scan", "", err)
		}

		relStart := start - alignedStart
		relTarget := target - alignedStart
		if relTarget > mapLen-1 {
			relTarget = mapLen - 1
		}

		cut := int64(-1)
		for i := relTarget; i >= relStart; i-- {
			if mapping[i] == '\n' {
				cut = i
				break
			}
		}
		if cut < 0 {
			// No newline at or before target: the line is longer than
			// the window, so take the first newline past target instead.
			for i := relTarget + 1; i < mapLen; i++ {
				if mapping[i] == '\n' {
					cut = i
					break
				}
			}
		}
		unix.Munmap(mapping)

		if cut >= 0 {
			return alignedStart + cut + 1, nil
		}
		if mapEnd >= fileSize {
			return fileSize, nil
		}

		probeBytes *= 2
	}
}

func alignDown(offset, pageSize int64) int64 {
	return (offset / pageSize) * pageSize
}
