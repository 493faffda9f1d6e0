package errors

import (
	"errors"
	"fmt"
)

// Code is the stable, machine-readable error code returned to callers.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeSessionExpired   Code = "SESSION_EXPIRED"
	CodePermissionDenied Code = "AUTH_INSUFFICIENT_PERMISSIONS"
	CodeStateTransition  Code = "STATE_TRANSITION_ERROR"
	CodeConflict         Code = "CONFLICT"
	CodeNetwork          Code = "NETWORK_ERROR"
	CodeInternal         Code = "INTERNAL_ERROR"

	CodeAppointmentNotFound     Code = "APPOINTMENT_NOT_FOUND"
	CodeAppointmentFetchFailed  Code = "APPOINTMENT_FETCH_FAILED"
	CodeAppointmentCreateFailed Code = "APPOINTMENT_CREATE_FAILED"
	CodeAppointmentUpdateFailed Code = "APPOINTMENT_UPDATE_FAILED"
	CodeAppointmentCancelFailed Code = "APPOINTMENT_CANCEL_FAILED"
	CodeAppointmentConfirmFail  Code = "APPOINTMENT_CONFIRM_FAILED"
	CodeAppointmentCheckinFail  Code = "APPOINTMENT_CHECKIN_FAILED"
	CodeAppointmentStartFailed  Code = "APPOINTMENT_START_FAILED"
	CodeAppointmentCompleteFail Code = "APPOINTMENT_COMPLETE_FAILED"

	CodeQueueFetchFailed Code = "QUEUE_FETCH_FAILED"
	CodeQueueAddFailed   Code = "QUEUE_ADD_FAILED"
	CodeQueueCallFailed  Code = "QUEUE_CALL_FAILED"
	CodeQueueStatsFailed Code = "QUEUE_STATS_FAILED"
)

// Kind classifies an error for propagation decisions: validation and auth
// errors never reach the backend, network errors may be retried, conflicts
// resolve in favor of the canonical state.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindStateTransition
	KindNotFound
	KindNetwork
	KindConflict
)

// AppError is the only error type that crosses the public operation boundary.
type AppError struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *AppError) Retryable() bool {
	return e.Kind == KindNetwork
}

func NewValidation(field, constraint string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: fmt.Sprintf("%s: %s", field, constraint),
	}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{Kind: KindAuth, Code: CodeUnauthorized, Message: msg}
}

func NewSessionExpired() *AppError {
	return &AppError{Kind: KindAuth, Code: CodeSessionExpired, Message: "session expired"}
}

func NewPermissionDenied(action string) *AppError {
	return &AppError{
		Kind:    KindAuth,
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("insufficient permissions for %s", action),
	}
}

func NewStateTransition(from, to string) *AppError {
	return &AppError{
		Kind:    KindStateTransition,
		Code:    CodeStateTransition,
		Message: fmt.Sprintf("invalid status transition %s -> %s", from, to),
	}
}

func NewNotFound(code Code, resource string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    code,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func NewConflict(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Code:    CodeConflict,
		Message: fmt.Sprintf("%s already advanced past the assumed state", resource),
		Err:     err,
	}
}

func NewNetwork(err error) *AppError {
	return &AppError{Kind: KindNetwork, Code: CodeNetwork, Message: "backend unreachable", Err: err}
}

func NewOperation(code Code, msg string, err error) *AppError {
	return &AppError{Kind: KindInternal, Code: code, Message: msg, Err: err}
}

// From extracts an *AppError, wrapping unknown errors as internal.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
