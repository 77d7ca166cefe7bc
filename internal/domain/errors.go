package domain

import (
	"fmt"
	"time"
)

// ============================================================
// Structured errors returned to tool callers
// ============================================================

// ErrorCode is the closed taxonomy of failures a caller can observe.
type ErrorCode string

const (
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeNetworkError       ErrorCode = "NETWORK_ERROR"
	CodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	CodeTokenRefreshFailed ErrorCode = "TOKEN_REFRESH_FAILED"
	CodeUnknown            ErrorCode = "UNKNOWN"
)

// timestampLayout matches the ISO-8601 form browsers produce (millisecond precision, UTC).
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// StructuredError is created once per failed call and returned to the caller as-is.
type StructuredError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Hint      string    `json:"hint,omitempty"`
	Service   string    `json:"service,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// NewStructuredError stamps a StructuredError with the current time.
func NewStructuredError(code ErrorCode, service, message, hint string) *StructuredError {
	return &StructuredError{
		Code:      code,
		Message:   message,
		Hint:      hint,
		Service:   service,
		Timestamp: FormatTimestamp(time.Now()),
	}
}

// FormatTimestamp renders t the way every gateway payload does.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func (e *StructuredError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Service, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ============================================================
// Internal error types, converted at the dispatcher boundary
// ============================================================

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an upstream call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker for an upstream is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates bad tool arguments.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrNotConfigured indicates an upstream is missing the secret it needs.
type ErrNotConfigured struct {
	Service string
	Setting string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("%s is not configured (missing %s)", e.Service, e.Setting)
}

// ErrTokenRefresh indicates a credential exchange against a token endpoint failed.
type ErrTokenRefresh struct {
	Identity string
	Status   int
	Err      error
}

func (e *ErrTokenRefresh) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token refresh for %s failed with status %d: %v", e.Identity, e.Status, e.Err)
	}
	return fmt.Sprintf("token refresh for %s failed: %v", e.Identity, e.Err)
}

func (e *ErrTokenRefresh) Unwrap() error {
	return e.Err
}
