package realtime

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable matches every FetchError.
var ErrUpstreamUnavailable = errors.New("upstream feed unavailable")

// FetchError describes a failed upstream fetch. Stage is one of "request",
// "status", "read" or "decode".
type FetchError struct {
	Stage      string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream feed %s failed (HTTP %d): %v", e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream feed %s failed: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrUpstreamUnavailable }
