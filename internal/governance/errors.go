// Package governance composes the identity, ledger, vault, inference,
// redaction, and telemetry components into the single request interceptor
// chain that every inference call passes through.
package governance

import "fmt"

// Category is the closed set of error kinds that may cross the pipeline's
// boundary. The HTTP edge maps each category to exactly one status code;
// no other part of the system inspects error text to decide behavior.
type Category string

const (
	CategoryAuthMissing        Category = "AuthMissing"
	CategoryAuthInvalid        Category = "AuthInvalid"
	CategoryForbidden          Category = "Forbidden"
	CategoryNotFound           Category = "NotFound"
	CategoryValidationFailed   Category = "ValidationFailed"
	CategoryBudgetExceeded     Category = "BudgetExceeded"
	CategoryLockConflict       Category = "LockConflict"
	CategoryConflict           Category = "Conflict"
	CategoryUnavailable        Category = "Unavailable"
	CategoryUpstream           Category = "Upstream"
	CategoryConfigurationError Category = "ConfigurationError"
	CategoryInternal           Category = "Internal"
)

// Error is the only error type the pipeline ever returns to a caller.
// Detail is safe to surface to an API client; err, if present, is the
// underlying collaborator failure and is never rendered outside logs.
type Error struct {
	Category Category
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(cat Category, detail string, err error) *Error {
	return &Error{Category: cat, Detail: detail, Err: err}
}
