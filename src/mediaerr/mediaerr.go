/*
Package mediaerr holds the error kinds shared by the image pipeline. Backends
and the compressor tag their failures with one of these kinds; callers test for
them with errors.Is.
*/
package mediaerr

import (
	"errors"

	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
)

var (
	Validation  = errors.New("validation error")
	Decode      = errors.New("decode error")
	Compression = errors.New("compression error")
	BackendIO   = errors.New("backend i/o error")
	NotFound    = errors.New("not found")
)

var allKinds = []error{Validation, Decode, Compression, BackendIO, NotFound}

type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{e.Err, e.Kind}
}

// Wraps the cause in an oops error (so it carries a stack) tagged with kind.
func New(kind error, wrapped error, format string, args ...interface{}) error {
	return &Error{
		Kind: kind,
		Err:  oops.New(wrapped, format, args...),
	}
}

// Returns the first kind found in err's chain, or BackendIO for untagged
// errors, since anything unclassified came from I/O somewhere.
func KindOf(err error) error {
	for _, kind := range allKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return BackendIO
}
