package document

import (
	"errors"
	"fmt"
)

// Pointer resolution and mutation failures. All of them are fatal to the
// operation that produced them.
var (
	ErrMalformedPointer     = errors.New("malformed pointer")
	ErrJumpOverflow         = errors.New("relative pointer jumps above document root")
	ErrCannotInferContainer = errors.New("cannot determine container for pointer")
	ErrIndexOutOfRange      = errors.New("array index out of range")
	ErrNotArray             = errors.New("append target is not an array")
	ErrNotContainer         = errors.New("cannot traverse scalar value")
	ErrNotFound             = errors.New("pointer target not found")
)

// PointerError attaches the offending pointer to a resolution failure.
type PointerError struct {
	Pointer string
	Err     error
}

func (e *PointerError) Error() string {
	return fmt.Sprintf("pointer %q: %v", e.Pointer, e.Err)
}

func (e *PointerError) Unwrap() error { return e.Err }

func pointerErr(pointer string, err error) error {
	return &PointerError{Pointer: pointer, Err: err}
}
