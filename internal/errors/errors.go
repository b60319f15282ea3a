package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Plate error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrConflict            ErrorCode = "CONFLICT"             // 409
	ErrNoFoodDetected      ErrorCode = "NO_FOOD_DETECTED"     // 422
	ErrRateLimited         ErrorCode = "RATE_LIMITED"         // 429
	ErrInternal            ErrorCode = "INTERNAL"             // 500
	ErrUpstreamParse       ErrorCode = "UPSTREAM_PARSE"       // 502
	ErrUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE" // 502
)

// PlateError represents a structured error with code, status, and details.
type PlateError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PlateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PlateError {
	return &PlateError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing job, entry or image.
func NewNotFound(resource, identifier string) *PlateError {
	return &PlateError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
		Details: map[string]any{"resource": resource, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for version conflicts on an entry.
func NewConflict(msg string) *PlateError {
	return &PlateError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewNoFoodDetected creates a 422 error for a model response that found no food.
func NewNoFoodDetected() *PlateError {
	return &PlateError{
		Code:    ErrNoFoodDetected,
		Status:  422,
		Message: "no food detected",
	}
}

// NewRateLimited creates a 429 error when submissions exceed the configured rate.
func NewRateLimited() *PlateError {
	return &PlateError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: "too many submissions, slow down",
	}
}

// NewUpstreamParse creates a 502 error for model output that is not valid JSON
// or does not match the expected shape.
func NewUpstreamParse(msg string) *PlateError {
	return &PlateError{
		Code:    ErrUpstreamParse,
		Status:  502,
		Message: msg,
	}
}

// NewUpstreamUnavailable creates a 502 error when the model call itself failed.
func NewUpstreamUnavailable(err error) *PlateError {
	msg := "model call failed"
	if err != nil {
		msg = err.Error()
	}
	return &PlateError{
		Code:    ErrUpstreamUnavailable,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error is kept in Details for logging.
func NewInternal(err error) *PlateError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &PlateError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is (or wraps) a PlateError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PlateError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// CodeOf returns the code of a PlateError, or ErrInternal for any other non-nil error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pErr *PlateError
	if stderrors.As(err, &pErr) {
		return pErr.Code
	}
	return ErrInternal
}
