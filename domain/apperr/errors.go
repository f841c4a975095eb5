package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes for different categories
const (
	// Registry errors (1xxx)
	ErrCodeEntityNotFound ErrorCode = "ENTITY_1001"
	ErrCodeEntityInactive ErrorCode = "ENTITY_1002"
	ErrCodeOwnerExists    ErrorCode = "ENTITY_1003"

	// Hierarchy errors (2xxx)
	ErrCodeHierarchyViolation ErrorCode = "HIER_2001"

	// Allocation errors (3xxx)
	ErrCodeInsufficientHours      ErrorCode = "ALLOC_3001"
	ErrCodeInvalidState           ErrorCode = "ALLOC_3002"
	ErrCodeConcurrentModification ErrorCode = "ALLOC_3003"

	// Ledger errors (4xxx)
	ErrCodeInvalidEvent         ErrorCode = "LEDGER_4001"
	ErrCodeEventNotFound        ErrorCode = "LEDGER_4002"
	ErrCodeBalanceInconsistency ErrorCode = "LEDGER_4003"

	// Validation errors (5xxx)
	ErrCodeInvalidRequest ErrorCode = "VALID_5001"

	// Storage and server errors (6xxx)
	ErrCodeDatabaseError       ErrorCode = "DB_6001"
	ErrCodeInternalServerError ErrorCode = "SERVER_6002"
)

// AppError represents a structured application error. Details always carries
// the violated invariant and the current figures so callers can render an
// actionable message.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new application error
func New(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// CodeOf extracts the error code from err, or the empty code if err is not an
// AppError
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Retryable reports whether the caller may retry the operation with fresh
// reads. Only lost races qualify.
func Retryable(err error) bool {
	return HasCode(err, ErrCodeConcurrentModification)
}

// Common error constructors

func ErrEntityNotFound(entityID string) *AppError {
	return New(ErrCodeEntityNotFound, "Entity not found", fmt.Sprintf("Entity ID: %s", entityID), nil)
}

func ErrEntityInactive(entityID string, status string) *AppError {
	return New(ErrCodeEntityInactive, "Entity is not active",
		fmt.Sprintf("Entity ID: %s, Status: %s", entityID, status), nil)
}

func ErrOwnerExists(existingID string) *AppError {
	return New(ErrCodeOwnerExists, "Owner already exists",
		fmt.Sprintf("Existing owner ID: %s", existingID), nil)
}

func ErrHierarchyViolation(fromType, toType string) *AppError {
	return New(ErrCodeHierarchyViolation, "Allocation not permitted between these levels",
		fmt.Sprintf("From: %s, To: %s", fromType, toType), nil)
}

func ErrInsufficientHours(entityID string, requested, available float64) *AppError {
	return New(ErrCodeInsufficientHours, "Insufficient available hours",
		fmt.Sprintf("Entity ID: %s, Requested: %.2f, Available: %.2f", entityID, requested, available), nil)
}

func ErrInvalidState(details string) *AppError {
	return New(ErrCodeInvalidState, "Operation not valid in the current state", details, nil)
}

func ErrConcurrentModification(details string) *AppError {
	return New(ErrCodeConcurrentModification, "Lost a concurrent update race, retry with fresh reads", details, nil)
}

func ErrInvalidEvent(details string, cause error) *AppError {
	return New(ErrCodeInvalidEvent, "Malformed allocation event", details, cause)
}

func ErrEventNotFound(eventID string) *AppError {
	return New(ErrCodeEventNotFound, "Allocation event not found", fmt.Sprintf("Event ID: %s", eventID), nil)
}

func ErrBalanceInconsistency(entityID string, details string) *AppError {
	return New(ErrCodeBalanceInconsistency, "Ledger replay produced an impossible balance",
		fmt.Sprintf("Entity ID: %s, %s", entityID, details), nil)
}

func ErrInvalidRequest(details string) *AppError {
	return New(ErrCodeInvalidRequest, "Invalid request", details, nil)
}

func ErrDatabaseError(operation string, cause error) *AppError {
	return New(ErrCodeDatabaseError, "Database operation failed", fmt.Sprintf("Operation: %s", operation), cause)
}

func ErrInternalServerError(details string, cause error) *AppError {
	return New(ErrCodeInternalServerError, "Internal server error", details, cause)
}

// GetHTTPStatusCode maps an error to the HTTP status the adapter should return
func GetHTTPStatusCode(err error) int {
	switch CodeOf(err) {
	case ErrCodeEntityNotFound, ErrCodeEventNotFound:
		return http.StatusNotFound
	case ErrCodeHierarchyViolation, ErrCodeEntityInactive:
		return http.StatusForbidden
	case ErrCodeInsufficientHours, ErrCodeInvalidState, ErrCodeOwnerExists:
		return http.StatusUnprocessableEntity
	case ErrCodeConcurrentModification:
		return http.StatusConflict
	case ErrCodeInvalidEvent, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeBalanceInconsistency:
		return http.StatusInternalServerError
	case ErrCodeDatabaseError:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
