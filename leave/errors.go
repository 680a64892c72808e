/*
errors.go - Centralized error taxonomy for the leave domain

PURPOSE:
  All domain error types in one place. Handlers map these to HTTP statuses
  in exactly one switch; nothing else in the codebase inspects error
  strings.

ERROR CATEGORIES:
  ValidationError    bad input shape or range        (400)
  AuthorizationError acting user lacks rights        (403)
  NotFoundError      missing entity                  (404)
  InvalidStateError  illegal lifecycle transition    (409)
  StorageError       durable-write failure           (500)

  DeliveryError lives in the push package; it is transport, not domain.

USAGE:
  Use the sentinels with errors.Is and the structured types with errors.As:

    if errors.Is(err, leave.ErrNotFound) { ... }

    var ve *leave.ValidationError
    if errors.As(err, &ve) { respond(ve.Field, ve.Reason) }
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state transition")
	ErrStorage       = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry field/reason context
// =============================================================================

// ValidationError reports a bad input value on a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthorizationError reports that the acting user may not touch the target.
type AuthorizationError struct {
	UserID int64
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: user %d: %s", e.UserID, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrAuthorization }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError reports a status move not in the transition table.
type InvalidStateError struct {
	LeaveID int64
	From    Status
	To      Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("leave %d: illegal transition %s -> %s", e.LeaveID, e.From, e.To)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// StorageError wraps a durable-write failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorage }

// IsClientError reports whether the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState)
}
