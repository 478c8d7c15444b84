package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Every AppError wraps exactly one of these so callers can
// branch with errors.Is without caring about the message.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrValidation        = errors.New("validation failed")
	ErrUnserviceable     = errors.New("area not serviceable")
	ErrInvalidPromo      = errors.New("invalid promo code")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
)

// Error codes surfaced to API clients.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnserviceable     = "UNSERVICEABLE_AREA"
	CodeInvalidPromo      = "INVALID_PROMO"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeRemoteUnavailable = "REMOTE_UNAVAILABLE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithField attaches the offending input field, used by inline form errors.
func (e *AppError) WithField(field string) *AppError {
	cpy := *e
	cpy.Field = field
	return &cpy
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error for malformed requests.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Validation creates a 400 error for a field that fails a business rule
// (address, phone, slot, prescription).
func Validation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrValidation,
	}
}

// Unserviceable creates a 422 error for a pincode outside the delivery area.
func Unserviceable(pincode string) *AppError {
	return &AppError{
		Code:    CodeUnserviceable,
		Message: fmt.Sprintf("we do not deliver to pincode %s yet", pincode),
		Field:   "pincode",
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrUnserviceable,
	}
}

// InvalidPromo creates a 422 error for an unknown coupon code.
func InvalidPromo(code string) *AppError {
	return &AppError{
		Code:    CodeInvalidPromo,
		Message: fmt.Sprintf("promo code %q is not valid", code),
		Field:   "promo_code",
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrInvalidPromo,
	}
}

// CapacityExceeded creates a 422 error for a room allocation that cannot be honoured.
func CapacityExceeded(message string) *AppError {
	return &AppError{
		Code:    CodeCapacityExceeded,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrCapacityExceeded,
	}
}

// RemoteUnavailable creates a 503 error for a failed backend call. message is
// shown to the user as-is, so pass the server's message when one exists.
func RemoteUnavailable(message string, err error) *AppError {
	if err == nil {
		err = ErrRemoteUnavailable
	} else {
		err = fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return &AppError{
		Code:    CodeRemoteUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Code returns the AppError code carried by err, or "" when err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnserviceable), errors.Is(err, ErrInvalidPromo), errors.Is(err, ErrCapacityExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
