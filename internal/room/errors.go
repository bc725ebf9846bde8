package room

import "errors"

// Error kinds surfaced to callers. HTTP status mapping lives in httpapi.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("caller identity unresolved")
	ErrForbidden    = errors.New("only the room owner may do this")
	ErrNotFound     = errors.New("room not found")
	ErrInvalidState = errors.New("room is not in a valid state for this operation")
)

// errUnchanged is returned by a Mutator to tell the store to skip the write.
var errUnchanged = errors.New("room unchanged")

// ErrConflict means the optimistic transaction kept losing to concurrent writers.
var ErrConflict = errors.New("room update conflict, retries exhausted")

type inputError struct {
	field  string
	reason string
}

func (e *inputError) Error() string { return e.field + ": " + e.reason }
func (e *inputError) Unwrap() error { return ErrInvalidInput }

func invalid(field, reason string) error { return &inputError{field: field, reason: reason} }

// InvalidField returns the offending field name of an input error, if any.
func InvalidField(err error) string {
	var ie *inputError
	if errors.As(err, &ie) {
		return ie.field
	}
	return ""
}

// InvalidInput builds an ErrInvalidInput for field, for use by sibling services.
func InvalidInput(field, reason string) error { return invalid(field, reason) }
