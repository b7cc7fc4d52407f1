package prism

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKey        = errors.New("unknown template key")
	ErrMissingIdentifier = errors.New("identifier missing from data object")
	ErrUnsupportedAssay  = errors.New("unsupported assay")
	ErrRowShape          = errors.New("row has more cells than the header")
	ErrDuplicateArtifact = errors.New("artifact already given for storage key")
)

// CoercionError reports a cell value its field's coercion rejected.
type CoercionError struct {
	Key   string
	Value any
	Type  string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("key %q: cannot coerce %v to %s: %v", e.Key, e.Value, e.Type, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// RowError locates a failure inside a workbook.
type RowError struct {
	Worksheet string
	Section   string
	Row       int
	Err       error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("worksheet %q %s row %d: %v", e.Worksheet, e.Section, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
