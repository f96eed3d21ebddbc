package utils

import (
	"fmt"
	"math"

	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
)

// Returns the provided value, or a default value if the input was zero.
func OrDefault[T comparable](v T, def T) T {
	var zero T
	if v == zero {
		return def
	} else {
		return v
	}
}

func IntClamp(min, t, max int) int {
	if t < min {
		return min
	}
	if t > max {
		return max
	}
	return t
}

func NumPages(numThings, thingsPerPage int) int {
	if thingsPerPage <= 0 {
		return 1
	}
	pages := int(math.Ceil(float64(numThings) / float64(thingsPerPage)))
	if pages < 1 {
		return 1
	}
	return pages
}

/*
Recover a panic and convert it to a returned error. Call it like so:

	func MyFunc() (err error) {
		defer utils.RecoverPanicAsError(&err)
	}

If an error was already present, it is kept as the cause of the new error so
errors.Is still finds it.
*/
func RecoverPanicAsError(err *error) {
	if r := recover(); r != nil {
		var recoveredErr error
		if rerr, ok := r.(error); ok {
			recoveredErr = rerr
		} else {
			recoveredErr = fmt.Errorf("panic with value: %v", r)
		}
		if *err != nil {
			*err = oops.New(*err, "panic recovered as error (%v)", recoveredErr)
		} else {
			*err = oops.New(recoveredErr, "panic recovered as error")
		}
	}
}
