package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently
// across log statements so records stay greppable and aggregable.
const (
	KeyPath       = "path"        // Input or output file path
	KeyOperation  = "operation"   // Sub-operation name
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyWorkers    = "workers"     // Worker pool size
	KeyRecords    = "records"     // Record count
	KeyDuplicates = "duplicates"  // Duplicate record count
	KeyBlocks     = "blocks"      // Block count
	KeySlabs      = "slabs"       // Slab count
	KeyBytes      = "bytes"       // Byte count
)

func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

func Workers(n int) slog.Attr {
	return slog.Int(KeyWorkers, n)
}

func Records(n uint64) slog.Attr {
	return slog.Uint64(KeyRecords, n)
}

func Duplicates(n uint64) slog.Attr {
	return slog.Uint64(KeyDuplicates, n)
}

func Blocks(n uint64) slog.Attr {
	return slog.Uint64(KeyBlocks, n)
}

func Slabs(n int) slog.Attr {
	return slog.Int(KeySlabs, n)
}

func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}
