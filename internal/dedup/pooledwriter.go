package dedup

import (
	"io"

	"github.com/pwdedup/pwdedup/pkg/bufpool"
)

// pooledWriter buffers writes into a bufpool-backed buffer, flushing to
// the underlying writer whenever the buffer fills. Close flushes any
// remainder and returns the buffer to the pool.
type pooledWriter struct {
	w   io.Writer
	buf []byte
	n   int
}

func newPooledWriter(w io.Writer) *pooledWriter {
	return &pooledWriter{
		w:   w,
		buf: bufpool.Get(bufpool.DefaultLargeSize),
	}
}

func (p *pooledWriter) Write(b []byte) (int, error) {
	written := 0
	for len(b) > 0 {
		n := copy(p.buf[p.n:], b)
		p.n += n
		b = b[n:]
		written += n
		if p.n == len(p.buf) {
			if err := p.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (p *pooledWriter) flush() error {
	if p.n == 0 {
		return nil
	}
	_, err := p.w.Write(p.buf[:p.n])
	p.n = 0
	return err
}

// Close flushes the remaining buffered bytes and releases the buffer
// back to the pool. The writer must not be used afterward.
func (p *pooledWriter) Close() error {
	err := p.flush()
	if p.buf != nil {
		bufpool.Put(p.buf)
		p.buf = nil
	}
	return err
}
