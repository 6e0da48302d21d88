package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a class of application error.
type ErrorCode string

const (
	// Generic
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Deal state machine guard violations. Rejected synchronously, never retried.
	ErrCodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotOwner              ErrorCode = "NOT_OWNER"
	ErrCodeNotAdvertiser         ErrorCode = "NOT_ADVERTISER"
	ErrCodeRevisionLimitExceeded ErrorCode = "REVISION_LIMIT_EXCEEDED"
	ErrCodeAlreadyTerminal       ErrorCode = "ALREADY_TERMINAL"
	ErrCodeAmountOutOfRange      ErrorCode = "AMOUNT_OUT_OF_RANGE"

	// Collaborator failures
	ErrCodeEscrowTransient   ErrorCode = "ESCROW_TRANSIENT"
	ErrCodeEscrowRejected    ErrorCode = "ESCROW_REJECTED"
	ErrCodeTelegramTransient ErrorCode = "TELEGRAM_TRANSIENT"
	ErrCodeTelegramPermanent ErrorCode = "TELEGRAM_PERMANENT"

	// Should never happen. Deal is frozen for manual review when raised.
	ErrCodeDataInvariant ErrorCode = "DATA_INVARIANT_VIOLATION"

	// Storage
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeCacheError    ErrorCode = "CACHE_ERROR"
)

// AppError is the typed error carried across service boundaries.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Cause     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsGuardViolation reports whether the error is a state machine guard
// rejection. Guard rejections surface to the caller and make no state change.
func (e *AppError) IsGuardViolation() bool {
	switch e.Code {
	case ErrCodeInvalidTransition, ErrCodeNotOwner, ErrCodeNotAdvertiser,
		ErrCodeRevisionLimitExceeded, ErrCodeAlreadyTerminal, ErrCodeAmountOutOfRange:
		return true
	}
	return false
}

// IsTransient reports whether the error is worth retrying with backoff.
func (e *AppError) IsTransient() bool {
	return e.Code == ErrCodeEscrowTransient || e.Code == ErrCodeTelegramTransient
}

func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeNotFound
}

// WithDetail attaches a key/value visible in logs and API error bodies.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Common constructors.

func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

func NewInvalidTransition(from, to string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("transition %s -> %s is not allowed", from, to)).
		WithDetail("from", from).
		WithDetail("to", to)
}

func NewNotOwnerError(dealID string, actorID int64) *AppError {
	return New(ErrCodeNotOwner, "actor is not the channel owner of record").
		WithDetail("deal_id", dealID).
		WithDetail("actor_id", actorID)
}

func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, fmt.Sprintf("Database operation failed: %s", operation)).
		WithDetail("operation", operation)
}

func NewDataInvariantError(description string) *AppError {
	return New(ErrCodeDataInvariant, description)
}

// AsAppError unwraps err to the nearest *AppError, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the error's code, or ErrCodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
