/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place. Callers match with errors.Is/errors.As;
  the api package maps these onto HTTP status codes.

ERROR CATEGORIES:
  1. Validation - malformed caller input, recoverable by resubmitting
  2. Conflict   - uniqueness violation (duplicate bill number, store name)
  3. Not found  - referenced store/bill does not exist
  4. No pending - lump-sum allocation against a store with nothing owed
  5. Storage    - persistence collaborator failed; transient, safe to retry
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is the base of all uniqueness violations.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is the base of all missing-resource errors.
	ErrNotFound = errors.New("not found")

	// ErrNoPendingBills is returned when a lump-sum payment is applied to a
	// store that has no bill with a positive pending amount.
	ErrNoPendingBills = errors.New("no pending bills for this store")

	// ErrStorageUnavailable is returned when the persistence layer fails.
	// The operation applied no (further) state; retrying is safe.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry enough context for the caller to self-correct
// =============================================================================

// ValidationError reports a malformed or out-of-range input field.
// Index points at the offending line item, or -1 for non-item fields.
type ValidationError struct {
	Field   string
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid %s at index %d: %s", e.Field, e.Index, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field string, index int, message string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Message: message}
}

// ConflictError reports a uniqueness violation, e.g. a bill number that is
// already taken. The caller must choose a different value or omit it.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing referenced resource.
type NotFoundError struct {
	Kind string // "store" or "bill"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNoPendingBills)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
