package merge

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is the sentinel wrapped by every ConflictError.
	ErrConflict = errors.New("merge conflict")
	// ErrDuplicateKey reports two elements with the same id on one side of a
	// keyed array merge.
	ErrDuplicateKey = errors.New("duplicate merge key")
	// ErrMissingKey reports a keyed array element without its id.
	ErrMissingKey = errors.New("array element has no merge key")
)

// ConflictError describes two values that could not be reconciled.
type ConflictError struct {
	Path   string
	Base   any
	Head   any
	Reason string
}

func (e *ConflictError) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("merge conflict at %s: %s (base %v, head %v)", path, e.Reason, e.Base, e.Head)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// KeyError carries the array location and offending key of a keyed merge
// failure.
type KeyError struct {
	Path string
	Key  any
	Err  error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%v at %s (key %v)", e.Err, e.Path, e.Key)
}

func (e *KeyError) Unwrap() error { return e.Err }
