package storage

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable matches every failure to reach or query the stop store.
// A well-formed query with no matches is never an error.
var ErrStoreUnavailable = errors.New("stop store unavailable")

// QueryError records which store operation failed.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store error during %q: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStoreUnavailable) match any QueryError.
func (e *QueryError) Is(target error) bool { return target == ErrStoreUnavailable }
