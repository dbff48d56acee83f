package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for catalog validation failures.
var (
	ErrMissingID     = errors.New("missing product id")
	ErrDuplicateID   = errors.New("duplicate product id")
	ErrMissingName   = errors.New("missing product name")
	ErrNegativePrice = errors.New("negative price")
	ErrNotArray      = errors.New("catalog must be a JSON array")
	ErrEmptyCatalog  = errors.New("catalog is empty")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsInvalid reports whether err describes a bad catalog file (unparseable
// JSON, a non-array top level, an empty array, or a failed record) as
// opposed to a downstream failure. Callers use it to pick a client error
// over a server error.
func IsInvalid(err error) bool {
	var vErr *ValidationError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.Is(err, ErrNotArray) ||
		errors.Is(err, ErrEmptyCatalog) ||
		errors.As(err, &vErr) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr)
}
