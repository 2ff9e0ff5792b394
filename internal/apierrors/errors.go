// Package apierrors defines the error kinds used across the control plane:
// every operation that can fail reports one of a small, closed set of kinds
// so handlers and the reconciler can react without inspecting message text.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError means the referenced container, secret, volume, namespace,
// or platform does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var e *NotFoundError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ConflictError means the requested name/namespace pair, or queue slot, is
// already taken.
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var e *ConflictError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// UnschedulableError means the scheduler found no adapter/accelerator
// combination that could satisfy the request.
type UnschedulableError struct {
	Reason string
}

func (e *UnschedulableError) Error() string {
	return fmt.Sprintf("unschedulable: %s", e.Reason)
}

func NewUnschedulableError(reason string) *UnschedulableError {
	return &UnschedulableError{Reason: reason}
}

func IsUnschedulableError(err error) (*UnschedulableError, bool) {
	var e *UnschedulableError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TransientError means the operation failed in a way that is expected to
// succeed on retry (network blip, provider rate limit, etc). The reconciler
// leaves the record in its current state and tries again on the next tick.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func IsTransientError(err error) (*TransientError, bool) {
	var e *TransientError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// FatalError means the operation cannot ever succeed as specified; the
// reconciler marks the record Failed rather than retrying.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func NewFatalError(op string, err error) *FatalError {
	return &FatalError{Op: op, Err: err}
}

func IsFatalError(err error) (*FatalError, bool) {
	var e *FatalError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ValidationError reports a malformed request, e.g. a missing required
// field or an unknown platform name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var e *ValidationError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps an error to the status code the API layer should return.
// Errors that don't match any known kind default to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isKind(err, &NotFoundError{}):
		return http.StatusNotFound
	case isKind(err, &ConflictError{}):
		return http.StatusConflict
	case isKind(err, &UnschedulableError{}):
		return http.StatusUnprocessableEntity
	case isKind(err, &ValidationError{}):
		return http.StatusBadRequest
	case isKind(err, &TransientError{}):
		return http.StatusServiceUnavailable
	case isKind(err, &FatalError{}):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func isKind(err error, target error) bool {
	switch target.(type) {
	case *NotFoundError:
		_, ok := IsNotFoundError(err)
		return ok
	case *ConflictError:
		_, ok := IsConflictError(err)
		return ok
	case *UnschedulableError:
		_, ok := IsUnschedulableError(err)
		return ok
	case *ValidationError:
		_, ok := IsValidationError(err)
		return ok
	case *TransientError:
		_, ok := IsTransientError(err)
		return ok
	case *FatalError:
		_, ok := IsFatalError(err)
		return ok
	}
	return false
}
