package core

import (
	"errors"
	"fmt"
	"strconv"
)

type ErrorCode string

const (
	ErrBadRequest         ErrorCode = "WPS_BAD_REQUEST"
	ErrNotFound           ErrorCode = "WPS_NOT_FOUND"
	ErrConflictLocked     ErrorCode = "WPS_CONFLICT_LOCKED"
	ErrConflictIdempotent ErrorCode = "WPS_CONFLICT_IDEMPOTENT_MISMATCH"
	ErrConflictExists     ErrorCode = "WPS_CONFLICT_EXISTS"
	ErrGone               ErrorCode = "WPS_GONE"
	ErrPreconditionFailed ErrorCode = "WPS_PRECONDITION_FAILED"
	ErrInternal           ErrorCode = "WPS_INTERNAL"

	ErrConfiguration   ErrorCode = "WPS_CONFIGURATION"
	ErrCommunication   ErrorCode = "WPS_COMMUNICATION"
	ErrUnknownResource ErrorCode = "WPS_UNKNOWN_RESOURCE"
	ErrFailedImport    ErrorCode = "WPS_FAILED_IMPORT"
	ErrCreationFailed  ErrorCode = "WPS_CREATION_FAILED"
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest, ErrConfiguration:
		return 400
	case ErrNotFound, ErrUnknownResource:
		return 404
	case ErrConflictLocked, ErrConflictIdempotent, ErrConflictExists:
		return 409
	case ErrGone:
		return 410
	case ErrPreconditionFailed:
		return 412
	case ErrCommunication, ErrFailedImport:
		return 502
	default:
		return 500
	}
}

// AppError carries a rendered message template plus the substituted
// values, so callers can match on Params without parsing the message.
type AppError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Params  map[string]string `json:"params,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// NewConfigurationError reports invalid or missing caller input.
func NewConfigurationError(msg string) *AppError {
	return &AppError{Code: ErrConfiguration, Message: msg}
}

// NewMissingParameterError reports an empty required call parameter.
func NewMissingParameterError(name string) *AppError {
	return &AppError{
		Code:    ErrConfiguration,
		Message: "missing required parameter: " + name,
		Params:  map[string]string{"parameter": name},
	}
}

// NewCommunicationError reports a platform call that failed with the
// given HTTP status.
func NewCommunicationError(statusCode int, statusText string) *AppError {
	return &AppError{
		Code:    ErrCommunication,
		Message: fmt.Sprintf("platform request failed with status %d %s", statusCode, statusText),
		Params: map[string]string{
			"status_code": strconv.Itoa(statusCode),
			"status_text": statusText,
		},
	}
}

// NewUnknownResourceError reports a remote entity that should exist but
// could not be found (workspace, capacity, dataset).
func NewUnknownResourceError(kind, id string) *AppError {
	return &AppError{
		Code:    ErrUnknownResource,
		Message: fmt.Sprintf("unknown %s: %s", kind, id),
		Params:  map[string]string{"resource": kind, "id": id},
	}
}

// NewAmbiguousResourceError reports a lookup that matched more than one
// remote entity when exactly one was expected.
func NewAmbiguousResourceError(kind, id string, count int) *AppError {
	return &AppError{
		Code:    ErrUnknownResource,
		Message: fmt.Sprintf("%s %q matched %d entries, expected exactly one", kind, id, count),
		Params: map[string]string{
			"resource": kind,
			"id":       id,
			"matches":  strconv.Itoa(count),
		},
	}
}

// NewFailedImportError reports a template import the platform moved to
// a failed state.
func NewFailedImportError(name, state string) *AppError {
	return &AppError{
		Code:    ErrFailedImport,
		Message: fmt.Sprintf("import %q ended in state %s", name, state),
		Params:  map[string]string{"import": name, "state": state},
	}
}

// NewCreationError wraps any provisioning step failure in one outward
// shape. The message stays generic; the cause remains reachable through
// errors.Unwrap for logging and tests.
func NewCreationError(cause error) *AppError {
	return &AppError{
		Code:    ErrCreationFailed,
		Message: "workspace creation did not complete",
		cause:   cause,
	}
}

// CodeOf extracts the error code from err, or ErrInternal when err does
// not carry one anywhere in its chain.
func CodeOf(err error) ErrorCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrInternal
}
