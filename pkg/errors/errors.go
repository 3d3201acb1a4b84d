package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors in the exchange
type ErrorCode string

const (
	// Order related errors
	ErrInvalidOrder        ErrorCode = "INVALID_ORDER"
	ErrOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	ErrOrderNotCancellable ErrorCode = "ORDER_NOT_CANCELLABLE"
	ErrOverfill            ErrorCode = "OVERFILL"
	ErrOwnershipMismatch   ErrorCode = "OWNERSHIP_MISMATCH"

	// Balance errors
	ErrInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	ErrInsufficientShares ErrorCode = "INSUFFICIENT_SHARES"

	// Market errors
	ErrSymbolNotFound  ErrorCode = "SYMBOL_NOT_FOUND"
	ErrInvalidPrice    ErrorCode = "INVALID_PRICE"
	ErrInvalidQuantity ErrorCode = "INVALID_QUANTITY"

	// Trader errors
	ErrTraderNotFound ErrorCode = "TRADER_NOT_FOUND"
	ErrTraderInactive ErrorCode = "TRADER_INACTIVE"

	// System errors
	ErrDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrSerializationError ErrorCode = "SERIALIZATION_FAILURE"
	ErrConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// ExchangeError represents a structured error in the exchange
type ExchangeError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *ExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// New creates a new ExchangeError
func New(code ErrorCode, message string) *ExchangeError {
	return &ExchangeError{Code: code, Message: message}
}

// Newf creates a new ExchangeError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ExchangeError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an ExchangeError
func Wrap(err error, code ErrorCode, message string) *ExchangeError {
	if err == nil {
		return nil
	}
	return &ExchangeError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with a formatted ExchangeError
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ExchangeError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is checks if an error carries a specific error code
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error chain
func GetCode(err error) ErrorCode {
	for err != nil {
		if ee, ok := err.(*ExchangeError); ok {
			return ee.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsRetryable determines if an error is worth retrying. Deadlocks and
// serialization failures clear on a rerun; validation errors never do.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrDatabaseError, ErrSerializationError:
		return true
	default:
		return false
	}
}

// IsClientError determines if an error maps to a 4xx response
func IsClientError(err error) bool {
	switch GetCode(err) {
	case ErrInvalidOrder, ErrOrderNotFound, ErrOrderNotCancellable,
		ErrOwnershipMismatch, ErrInsufficientFunds, ErrInsufficientShares,
		ErrSymbolNotFound, ErrInvalidPrice, ErrInvalidQuantity,
		ErrTraderNotFound, ErrTraderInactive:
		return true
	default:
		return false
	}
}
