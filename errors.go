package archmod

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a constructor or method receives
	// an absent or malformed argument, such as a nil archive handle.
	ErrInvalidArgument = errors.New("archmod: invalid argument")

	// ErrUnreachableState is returned when reading entry content fails.
	// Under correct usage content reads cannot fail, so this indicates a
	// corrupted archive or an entry paired with the wrong module.
	ErrUnreachableState = errors.New("archmod: unreachable state")
)

// errForeignEntry is the cause recorded when an entry is read through a module it does not belong to.
var errForeignEntry = errors.New("entry belongs to a different module")

// UnreachableError reports a failed content read.
//
// It matches ErrUnreachableState with errors.Is, and also unwraps to the
// underlying cause.
type UnreachableError struct {
	// Location is the canonical location of the module.
	Location string

	// Entry is the name of the entry being read.
	Entry string

	// Err is the underlying failure.
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("archmod: unreachable state reading %s!%s: %v", e.Location, e.Entry, e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *UnreachableError) Unwrap() []error {
	return []error{ErrUnreachableState, e.Err}
}
