package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalid         ErrorCode = "INVALID"
	ErrCodePolicyViolation ErrorCode = "POLICY_VIOLATION"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal        ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Sale aggregate errors.
var (
	ErrSaleNotFound          = NewError(ErrCodeNotFound, "sale not found")
	ErrEmptyCustomerID       = NewError(ErrCodeInvalid, "customer id is required")
	ErrEmptyBranchID         = NewError(ErrCodeInvalid, "branch id is required")
	ErrEmptyProductID        = NewError(ErrCodeInvalid, "product id is required")
	ErrInvalidQuantity       = NewError(ErrCodeInvalid, "quantity must be greater than zero")
	ErrInvalidUnitPrice      = NewError(ErrCodeInvalid, "unit price must be greater than zero and at most 999999.99")
	ErrAddToCancelledSale    = NewError(ErrCodeInvalid, "cannot add items to a cancelled sale")
	ErrRemoveFromCancelled   = NewError(ErrCodeInvalid, "cannot remove items from a cancelled sale")
	ErrSaleAlreadyCancelled  = NewError(ErrCodeInvalid, "sale is already cancelled")
	ErrSaleCancelled         = NewError(ErrCodeInvalid, "sale is cancelled")
	ErrProductNotInSale      = NewError(ErrCodeInvalid, "product is not part of the sale")
	ErrRemoveExceedsHeld     = NewError(ErrCodeInvalid, "cannot remove more units than the sale holds")
	ErrNumberAlreadyAssigned = NewError(ErrCodeInvalid, "sale number already assigned")
	ErrInvalidSaleNumber     = NewError(ErrCodeInvalid, "sale number must be positive")
	ErrQuantityLimitExceeded = NewError(ErrCodePolicyViolation, "cannot sell more than 20 units of the same product")
)

// Command, storage and outbox errors.
var (
	ErrRequestIDRequired    = NewError(ErrCodeInvalid, "request id is required")
	ErrSaleItemsRequired    = NewError(ErrCodeInvalid, "at least one item is required")
	ErrCustomerNotFound     = NewError(ErrCodeInvalid, "customer not found")
	ErrSaleNotValidated     = NewError(ErrCodeInvalid, "sale could not be validated")
	ErrConcurrencyConflict  = NewError(ErrCodeConflict, "concurrent modification detected")
	ErrConcurrencyExhausted = NewError(ErrCodeConflict, "could not complete the operation due to concurrent writers")
	ErrDuplicateRequest     = NewError(ErrCodeConflict, "request already recorded")
	ErrUnknownEventType     = NewError(ErrCodeInvalid, "unknown event type")
	ErrInvalidPayload       = NewError(ErrCodeInvalid, "invalid payload")
	ErrOutboxRecordNotFound = NewError(ErrCodeNotFound, "outbox record not found")
	ErrUnauthorized         = NewError(ErrCodeUnauthorized, "unauthorized")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// IsConcurrencyConflict reports whether err is a retryable write conflict.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// PublicMessage returns the message that can be shown to callers. Errors without a
// domain classification collapse to a generic text.
func PublicMessage(err error) string {
	var dErr *Error
	if errors.As(err, &dErr) && dErr.Code != ErrCodeInternal {
		return dErr.Message
	}
	return "internal error"
}
