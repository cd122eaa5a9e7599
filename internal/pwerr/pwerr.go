// Package pwerr defines the error-kind taxonomy shared across pwdedup's
// core packages: block streaming, the record store, the dedup set, and
// the driver that ties them together.
//
// Every fatal condition the core can raise maps to one of the sentinel
// Kind values below. Callers classify an error with Classify and wrap
// it with %w so the original cause survives for logging.
package pwerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a fatal error.
type Kind int

const (
	// KindUnknown covers errors that do not belong to any of the named kinds.
	KindUnknown Kind = iota
	// KindUsage signals a wrong number of command-line arguments.
	KindUsage
	// KindOpenFailed signals a failure to open an input or create the output.
	KindOpenFailed
	// KindMapFailed signals an mmap or ftruncate failure.
	KindMapFailed
	// KindAllocFailed signals heap exhaustion.
	KindAllocFailed
	// KindTooLarge signals a single record exceeding SlabBytes-1.
	KindTooLarge
	// KindBadSizeHintAlignment signals size_hint not a multiple of the page size.
	KindBadSizeHintAlignment
	// KindLongLineInInput signals a record spanning more than one block window.
	KindLongLineInInput
	// KindFetchFailed signals a failure retrieving a remote (s3://) input.
	KindFetchFailed
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "Usage"
	case KindOpenFailed:
		return "OpenFailed"
	case KindMapFailed:
		return "MapFailed"
	case KindAllocFailed:
		return "AllocFailed"
	case KindTooLarge:
		return "TooLarge"
	case KindBadSizeHintAlignment:
		return "BadSizeHintAlignment"
	case KindLongLineInInput:
		return "LongLineInInput"
	case KindFetchFailed:
		return "FetchFailed"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can classify
// fatal conditions without string matching.
type Error struct {
	Kind Kind
	Op   string // short operation label, e.g. "open input", "mmap slab"
	Path string // file or path involved, if any
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Op, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Op, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an *Error of the given kind.
func New(kind Kind, op string, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Classify returns the Kind carried by err, walking the error chain.
// Returns KindUnknown if err (or anything it wraps) is not a *Error.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's classified kind equals kind.
func IsKind(err error, kind Kind) bool {
	return Classify(err) == kind
}
