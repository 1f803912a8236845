package catalog

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Sentinel errors for the operation outcomes the transport layer maps to
// status codes. Match with eris.Is.
var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = eris.New("catalog: not found")

	// ErrForbidden means the requester is not the entity's reporter.
	ErrForbidden = eris.New("catalog: forbidden")

	// ErrConflict means an entity with the same external source id already
	// exists. Bulk import counts these as skips.
	ErrConflict = eris.New("catalog: conflict")
)

// ValidationError rejects a write before it touches the index or the store.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
