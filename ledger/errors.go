/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place. The taxonomy follows the operation
  contract: ValidationError (bad input, nothing mutated), not-found
  (treated as a validation failure, not a system fault), ErrConflict
  (a precondition stopped holding at commit time, retryable), and
  everything else (store failure, whole unit aborted).

ERROR CATEGORIES:
  1. Field errors    - per-field business-rule violations, accumulated
  2. Sentinel errors - use with errors.Is()
  3. Helpers         - classification for transport layers

SEE ALSO:
  - validate.go: builds FieldErrors
  - engine.go:   raises ErrConflict on commit-time recheck failure
  - api:         maps these onto HTTP statuses
*/
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist or
	// does not belong to the requesting user. The caller cannot tell the
	// two apart, on purpose.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent mutation invalidated a
	// precondition between validation and commit (e.g. balance drifted
	// below the debited amount). The unit of work is rolled back; the
	// caller should retry.
	ErrConflict = errors.New("conflict: state changed, retry")

	// ErrInsufficientBalance is returned when a debit would push an
	// account balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCashWalletProtected is returned on attempts to edit or delete
	// the reserved CASH wallet account.
	ErrCashWalletProtected = errors.New("cash wallet cannot be modified or deleted")

	// ErrInUse is returned when deleting an entity that ledger rows
	// still reference (category, source, loan with history).
	ErrInUse = errors.New("entity is referenced by ledger records")

	// ErrDuplicate is returned on unique-constraint violations
	// (account number per bank, contact name, category name).
	ErrDuplicate = errors.New("duplicate value")
)

// =============================================================================
// FIELD ERRORS - structured per-field validation failures
// =============================================================================

// FieldErrors maps a field path (e.g. "accounts[0].splits[1].amount")
// to one or more messages. This is the external contract for 400-class
// responses: callers get the offending path, not one opaque string.
type FieldErrors map[string][]string

// Add appends a message for a field path.
func (f FieldErrors) Add(path, msg string) {
	f[path] = append(f[path], msg)
}

// Addf appends a formatted message for a field path.
func (f FieldErrors) Addf(path, format string, args ...any) {
	f.Add(path, fmt.Sprintf(format, args...))
}

// Merge folds another set of field errors into this one.
func (f FieldErrors) Merge(other FieldErrors) {
	for path, msgs := range other {
		f[path] = append(f[path], msgs...)
	}
}

// Empty reports whether no violations were recorded.
func (f FieldErrors) Empty() bool { return len(f) == 0 }

// ValidationError is a request-shape or business-rule violation. It is
// always raised before any mutation; resubmitting corrected input is
// the expected recovery.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Fields))
	for p := range e.Fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, p+": "+strings.Join(e.Fields[p], "; "))
	}
	return "validation failed: " + strings.Join(parts, " | ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(path, msg string) *ValidationError {
	f := FieldErrors{}
	f.Add(path, msg)
	return &ValidationError{Fields: f}
}

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// NotFoundError says which entity reference failed to resolve under the
// requesting user's ownership chain.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientBalanceError reports which account came up short.
type InsufficientBalanceError struct {
	AccountID   AccountID
	AccountName string
	Balance     Money
	Requested   Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance in account %q: have %s, need %s",
		e.AccountName, e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's fault and a
// corrected resubmission could succeed.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrCashWalletProtected) ||
		errors.Is(err, ErrInUse) ||
		errors.Is(err, ErrDuplicate)
}

// IsRetryable reports whether the same request might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// isNotFound is the internal shorthand for ownership-chain misses.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AsFieldErrors extracts the field map from a validation error, or
// wraps other client errors under a catch-all key so transports always
// have a structured payload to return.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields, true
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		f := FieldErrors{}
		f.Add(strings.ToLower(nf.Entity), nf.Error())
		return f, true
	}
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		f := FieldErrors{}
		f.Add("amount", ib.Error())
		return f, true
	}
	if IsClientError(err) {
		f := FieldErrors{}
		f.Add("detail", err.Error())
		return f, true
	}
	return nil, false
}
