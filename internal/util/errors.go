package util

import (
	"errors"
	"net/http"
	"time"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	StatusCode int           `json:"-"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Details    string        `json:"details,omitempty"`
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeRateLimit           = "RATE_LIMIT_EXCEEDED"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked       = "ACCOUNT_LOCKED"
	ErrCodeTokenExpired        = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid        = "TOKEN_INVALID"
	ErrCodeCycleLocked         = "CYCLE_LOCKED"
	ErrCodeCycleAlreadyActive  = "CYCLE_ALREADY_ACTIVE"
	ErrCodeUpstream            = "UPSTREAM_ERROR"
)

// NewAppError creates a new application error
func NewAppError(statusCode int, code, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewAppErrorWithDetails creates a new application error with details
func NewAppErrorWithDetails(statusCode int, code, message, details string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Details:    details,
	}
}

// WrapError wraps an existing error
func WrapError(statusCode int, code, message string, err error) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

// Common error constructors

func ErrBadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, ErrCodeBadRequest, message)
}

func ErrUnauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func ErrTokenInvalid(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, ErrCodeTokenInvalid, message)
}

func ErrInvalidCredentials() *AppError {
	return NewAppError(http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid username or password")
}

func ErrForbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, ErrCodeForbidden, message)
}

func ErrNotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, ErrCodeNotFound, message)
}

func ErrConflict(message string) *AppError {
	return NewAppError(http.StatusConflict, ErrCodeConflict, message)
}

func ErrValidation(message string) *AppError {
	return NewAppError(http.StatusBadRequest, ErrCodeValidation, message)
}

func ErrInternalServer(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, ErrCodeInternal, message)
}

func ErrRateLimit(message string, retryAfter time.Duration) *AppError {
	e := NewAppError(http.StatusTooManyRequests, ErrCodeRateLimit, message)
	e.RetryAfter = retryAfter
	return e
}

func ErrAccountLocked(retryAfter time.Duration) *AppError {
	e := NewAppError(http.StatusTooManyRequests, ErrCodeAccountLocked, "Too many failed login attempts, try again later")
	e.RetryAfter = retryAfter
	return e
}

// Cycle engine errors. All three are client errors (400).

func ErrCycleLocked(message string) *AppError {
	return NewAppError(http.StatusBadRequest, ErrCodeCycleLocked, message)
}

func ErrCycleAlreadyActive(message string) *AppError {
	return NewAppError(http.StatusBadRequest, ErrCodeCycleAlreadyActive, message)
}

func ErrInsufficientBalance(message string) *AppError {
	return NewAppError(http.StatusBadRequest, ErrCodeInsufficientBalance, message)
}

// ErrUpstream maps a failed upstream call. Non-error upstream statuses collapse to 502.
func ErrUpstream(statusCode int, message string, err error) *AppError {
	if statusCode < 400 {
		statusCode = http.StatusBadGateway
	}
	return WrapError(statusCode, ErrCodeUpstream, message, err)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
