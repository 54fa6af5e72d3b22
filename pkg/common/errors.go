package common

import (
	"fmt"
	"net/http"
)

// AppError is the application error type carried from services up to handlers.
// Code is the HTTP status the handler should respond with.
type AppError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured details to the error and returns it.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// NewBadRequestError creates a 400 error
func NewBadRequestError(message string, err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, Err: err}
}

// NewUnauthorizedError creates a 401 error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: message}
}

// NewForbiddenError creates a 403 error
func NewForbiddenError(message string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: message}
}

// NewNotFoundError creates a 404 error
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: message, Err: err}
}

// NewConflictError creates a 409 error
func NewConflictError(message string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: message}
}

// NewInternalServerError creates a 500 error
func NewInternalServerError(message string) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: message}
}

// NewServiceUnavailableError creates a 503 error
func NewServiceUnavailableError(message string) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: message}
}
