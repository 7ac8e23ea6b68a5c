package monster

import (
	"errors"
	"fmt"
)

// ErrInvalid is matched by every [*ValidationError] via errors.Is.
var ErrInvalid = errors.New("monster: invalid record")

// ErrorKind classifies why a field failed validation.
type ErrorKind int

const (
	// MissingField means a required key is absent or null.
	MissingField ErrorKind = iota + 1

	// WrongType means the value cannot be coerced to the required type.
	WrongType

	// OutOfRange means the value has the right type but violates a bound
	// or is not one of the allowed values.
	OutOfRange

	// Empty means a required string is blank or a required list has no
	// elements.
	Empty
)

// String returns the kind name as used in logs and API responses.
func (k ErrorKind) String() string {
	switch k {
	case MissingField:
		return "MissingField"
	case WrongType:
		return "WrongType"
	case OutOfRange:
		return "OutOfRange"
	case Empty:
		return "Empty"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ValidationError reports the first field of a model reply that does not
// satisfy the schema.
type ValidationError struct {
	// Field is a dotted and indexed path such as "abilities.strength" or
	// "actions[1].name". "response" refers to the reply as a whole.
	Field string

	Kind ErrorKind

	// Reason is a short human-readable explanation.
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("monster: %s: %s", e.Kind, e.Field)
	}
	return fmt.Sprintf("monster: %s(%s): %s", e.Kind, e.Field, e.Reason)
}

// Is reports whether target is [ErrInvalid].
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field string, kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
