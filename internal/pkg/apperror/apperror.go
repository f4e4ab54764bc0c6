package apperror

import "net/http"

// AppError is a custom error type that carries the HTTP status code the boundary should answer with.
type AppError struct {
	Code    int    // HTTP Status Code (e.g., 400, 404)
	Message string // User-facing error message
	Err     error  // The underlying error, if any (not exposed to user)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with a status code and message.
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NotFound(message string) *AppError {
	return New(http.StatusNotFound, message)
}

func BadRequest(message string) *AppError {
	return New(http.StatusBadRequest, message)
}

func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, message)
}

func Conflict(message string) *AppError {
	return New(http.StatusConflict, message)
}

// Unavailable marks a failure the caller may retry, such as an upstream timeout.
func Unavailable(message string) *AppError {
	return New(http.StatusServiceUnavailable, message)
}
