package schema

import (
	"fmt"
	"strings"
)

// ValidationError lists every violation found in one document, each as
// "<instance pointer>: <reason>".
type ValidationError struct {
	Schema string
	Detail []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document does not conform to %s: %s", e.Schema, strings.Join(e.Detail, "; "))
}
