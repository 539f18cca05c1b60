package profile

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a named profile does not exist in the store.
var ErrNotFound = errors.New("profile not found")

// ValidationError reports a bad field value. It is recoverable: the
// caller re-prompts the operator rather than aborting the process.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a duplicate name or a port collision. Recoverable
// in the same way as ValidationError.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Detail)
}

// ParseError reports a malformed stored record. No partial profile is
// returned alongside it.
type ParseError struct {
	Name string
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("profile %q: malformed record at line %d: %q", e.Name, e.Line, e.Text)
}
