package apierror

import (
	"encoding/json"
	"net/http"
)

// Error is the error body every endpoint returns.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Retryable  bool         `json:"retryable,omitempty"`
	Details    []FieldError `json:"details,omitempty"`
}

// FieldError names a payload field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

type envelope struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error"`
}

// ToJSON renders the error inside the standard response envelope.
func (e *Error) ToJSON() []byte {
	data, _ := json.Marshal(envelope{Error: e})
	return data
}

func newError(status int, code, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{StatusCode: status, Code: code, Message: message}
}

// BadRequest is a 400 for malformed input.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, "BAD_REQUEST", message, "Malformed request")
}

// ValidationError is a 400 carrying one entry per rejected field.
func ValidationError(message string, details ...FieldError) *Error {
	e := newError(http.StatusBadRequest, "VALIDATION_ERROR", message, "Record failed validation")
	e.Details = details
	return e
}

// Unauthorized is a 401.
func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message, "Authentication required")
}

// NotFound is a 404 for ids absent from the store.
func NotFound(message string) *Error {
	return newError(http.StatusNotFound, "NOT_FOUND", message, "Record not found")
}

// Conflict is a 409 for ids that already exist.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, "CONFLICT", message, "Record already exists")
}

// Unprocessable is a 422 for commands the cache or store rejected.
func Unprocessable(message string) *Error {
	return newError(http.StatusUnprocessableEntity, "UNPROCESSABLE", message, "Command rejected by the backend")
}

// InternalError is a 500.
func InternalError(message string) *Error {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", message, "An unexpected error occurred")
}

// ServiceUnavailable is a 503 for unreachable backends. Clients may retry it.
func ServiceUnavailable(message string) *Error {
	e := newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, "Backend temporarily unavailable")
	e.Retryable = true
	return e
}
