// Package dedup drives the end-to-end dedup run: it wires a block
// iterator, a dedup set, and a record store together behind a bounded
// worker pool, then dumps the surviving records to the output path.
package dedup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pwdedup/pwdedup/internal/blockstream"
	"github.com/pwdedup/pwdedup/internal/dedupset"
	"github.com/pwdedup/pwdedup/internal/pwerr"
	"github.com/pwdedup/pwdedup/internal/recordstore"
)

// MaxWorkers bounds the worker pool regardless of how many logical
// CPUs are detected.
const MaxWorkers = 256

// defaultSizeHintPages is the block size used when Options.SizeHint is
// left at zero: 512 pages.
const defaultSizeHintPages = 512

// Options configures a Run.
type Options struct {
	// Workers is the number of worker goroutines. Zero means one per
	// logical CPU, capped at MaxWorkers.
	Workers int
	// SizeHint is the block iterator's size hint in bytes. Zero means
	// defaultSizeHintPages pages.
	SizeHint int64
	// SlabBytes is the record store's slab size. Zero means
	// recordstore.DefaultSlabBytes.
	SlabBytes uint32
	// TempDir is the directory under which the record store's working
	// directory is created. Zero value means os.TempDir().
	TempDir string
}

// Stats summarizes a completed run.
type Stats struct {
	RecordsTotal     uint64
	RecordsDuplicate uint64
	BlocksMapped     uint64
	SlabsTotal       int
}

// Run deduplicates every line of every file in inputs and writes the
// distinct lines, newline-delimited, to outputPath. Line order in the
// output is unspecified.
func Run(ctx context.Context, inputs []string, outputPath string, opts Options) (Stats, error) {
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	storeDir := filepath.Join(tempDir, fmt.Sprintf("pwdedup-store-%d", os.Getpid()))

	store, err := recordstore.New(storeDir, opts.SlabBytes)
	if err != nil {
		return Stats{}, err
	}
	defer store.Close()

	set := dedupset.New(store)

	sizeHint := opts.SizeHint
	if sizeHint <= 0 {
		sizeHint = int64(os.Getpagesize()) * defaultSizeHintPages
	}

	iter, err := blockstream.New(inputs, sizeHint)
	if err != nil {
		return Stats{}, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if workers < 1 {
		workers = 1
	}

	var blocksMapped atomic.Uint64
	var recordsTotal atomic.Uint64

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runWorker(ctx, iter, set, &blocksMapped, &recordsTotal); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return Stats{}, err
		}
	}

	if err := dumpTo(store, outputPath); err != nil {
		return Stats{}, err
	}

	return Stats{
		RecordsTotal:     recordsTotal.Load(),
		RecordsDuplicate: recordsTotal.Load() - set.Count(),
		BlocksMapped:     blocksMapped.Load(),
		SlabsTotal:       store.SlabCount(),
	}, nil
}

// runWorker pulls blocks from iter until the stream ends or ctx is
// cancelled, tokenizing each block by '\n' and feeding non-empty
// tokens to set.
func runWorker(ctx context.Context, iter *blockstream.Iterator, set *dedupset.Set, blocksMapped, recordsTotal *atomic.Uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		block, err := iter.Next()
		if err != nil {
			return err
		}
		if block == nil {
			return nil
		}
		blocksMapped.Add(1)

		if err := consumeBlock(block, set, recordsTotal); err != nil {
			block.Unmap()
			return err
		}

		if err := block.Unmap(); err != nil {
			return err
		}
	}
}

// consumeBlock splits a block's text on '\n', discards empty tokens
// (a trailing newline produces one, as would a blank line), and
// inserts every other token into set.
func consumeBlock(block *blockstream.Block, set *dedupset.Set, recordsTotal *atomic.Uint64) error {
	text := block.Text()
	for len(text) > 0 {
		i := bytes.IndexByte(text, '\n')
		var line []byte
		if i < 0 {
			line = text
			text = nil
		} else {
			line = text[:i]
			text = text[i+1:]
		}
		if len(line) == 0 {
			continue
		}
		recordsTotal.Add(1)
		if _, _, err := set.Add(line); err != nil {
			return err
		}
	}
	return nil
}

func dumpTo(store *recordstore.Store, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return pwerr.New(pwerr.KindOpenFailed, "create output", outputPath, err)
	}

	pw := newPooledWriter(out)
	if _, err := store.Dump(pw); err != nil {
		pw.Close()
		out.Close()
		return err
	}
	if err := pw.Close(); err != nil {
		out.Close()
		return pwerr.New(pwerr.KindOpenFailed, "flush output", outputPath, err)
	}
	return out.Close()
}
