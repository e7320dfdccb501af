// Package errors provides unified error handling for the query layer
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Cursor errors (1xxx)
	ErrCodeInvalidCursor ErrorCode = "CURSOR_1001"

	// Provider errors (2xxx)
	ErrCodeProviderFailure ErrorCode = "PROVIDER_2001"
	ErrCodeProviderDecode  ErrorCode = "PROVIDER_2002"

	// Engine errors (3xxx)
	ErrCodeScriptFailure ErrorCode = "ENGINE_3001"
	ErrCodeLimitExceeded ErrorCode = "ENGINE_3002"
	ErrCodeHandleClash   ErrorCode = "ENGINE_3003"

	// Validation errors (4xxx)
	ErrCodeInvalidInput ErrorCode = "VAL_4001"

	// Service errors (5xxx)
	ErrCodeInternal          ErrorCode = "SVC_5001"
	ErrCodeRateLimitExceeded ErrorCode = "SVC_5002"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Cursor Errors

// InvalidCursor indicates a sealed cursor whose signature does not verify
// under the current request's key.
func InvalidCursor() *ServiceError {
	return New(ErrCodeInvalidCursor, "invalid cursor: signature does not match", http.StatusBadRequest)
}

// Provider Errors

func ProviderFailure(operation string, err error) *ServiceError {
	return Wrap(ErrCodeProviderFailure, "Data source operation failed", http.StatusBadGateway, err).
		WithDetails("operation", operation)
}

func ProviderDecode(err error) *ServiceError {
	return Wrap(ErrCodeProviderDecode, "Data source row decode failed", http.StatusBadGateway, err)
}

// Engine Errors

func ScriptFailure(err error) *ServiceError {
	return Wrap(ErrCodeScriptFailure, "Script execution failed", http.StatusBadRequest, err)
}

func LimitExceeded(limit string) *ServiceError {
	return New(ErrCodeLimitExceeded, "Execution limit exceeded", http.StatusUnprocessableEntity).
		WithDetails("limit", limit)
}

func HandleClash() *ServiceError {
	return New(ErrCodeHandleClash, "Iterator handle collision", http.StatusInternalServerError)
}

// Validation Errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "Invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// Service Errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
