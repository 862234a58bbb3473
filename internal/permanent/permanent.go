package permanent

import (
	"errors"
	"fmt"
)

// Error marks delivery or persistence failures that must not be retried.
// Params: wrapped root cause.
// Returns: typed permanent error marker.
type Error struct {
	Err error
}

// Error returns wrapped error message.
func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// Permanent reports the marker.
func (Error) Permanent() bool {
	return true
}

// Mark wraps err with the permanent marker.
// Params: source error.
// Returns: wrapped error or nil.
func Mark(err error) error {
	if err == nil || Is(err) {
		return err
	}
	return Error{Err: err}
}

// Errorf formats a new permanent error.
// Params: fmt-style format and arguments (supports %w).
// Returns: permanent error.
func Errorf(format string, args ...any) error {
	return Error{Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the permanent marker anywhere in its chain.
// Params: candidate error.
// Returns: true when retrying cannot succeed.
func Is(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Permanent()
}
