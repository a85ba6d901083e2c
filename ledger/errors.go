/*
errors.go - Error taxonomy for the finance domain

PURPOSE:
  All error types in one place. Callers classify with errors.Is against the
  sentinels; structured errors carry the offending fields or IDs and unwrap
  to exactly one sentinel (StorageError also unwraps to the driver error).

ERROR CATEGORIES:
  Unauthenticated    - no resolved identity where one is required
  InvalidArgument    - malformed or empty input
  AlreadyExists      - duplicate email on sign-up
  InvalidCredentials - sign-in mismatch (never says which half was wrong)
  Conflict           - invoiced rows, concurrent relinking
  NotFound           - row missing or owned by someone else
  StorageFailure     - any unit-of-work failure (always rolled back)

SEE ALSO:
  - api/errors.go: Maps Code() into GraphQL error extensions
*/
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrStorageFailure     = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the input field that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Reason
	}
	return fmt.Sprintf("invalid argument: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ForeignTransactionsError lists requested transaction IDs that do not exist
// or belong to another user.
type ForeignTransactionsError struct {
	IDs []TransactionID
}

func (e *ForeignTransactionsError) Error() string {
	return "invalid argument: transactions not found for caller: " + joinIDs(e.IDs)
}

func (e *ForeignTransactionsError) Unwrap() error { return ErrInvalidArgument }

// AlreadyInvoicedError lists transactions already linked to an invoice.
type AlreadyInvoicedError struct {
	IDs []TransactionID
}

func (e *AlreadyInvoicedError) Error() string {
	return "conflict: transactions already invoiced: " + joinIDs(e.IDs)
}

func (e *AlreadyInvoicedError) Unwrap() error { return ErrConflict }

// StorageError wraps a driver failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageFailure, e.Err} }

// Storage wraps err as a StorageError unless it already carries a domain
// sentinel, in which case it is returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if Code(err) != CodeInternal {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeConflict           = "CONFLICT"
	CodeNotFound           = "NOT_FOUND"
	CodeStorageFailure     = "STORAGE_FAILURE"
	CodeInternal           = "INTERNAL"
)

// Code classifies err into one of the Code* constants.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStorageFailure):
		return CodeStorageFailure
	}
	return CodeInternal
}

// IsClientError returns true if the error is due to caller input or identity.
func IsClientError(err error) bool {
	switch Code(err) {
	case CodeStorageFailure, CodeInternal, "":
		return false
	}
	return true
}

func joinIDs(ids []TransactionID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ", ")
}
