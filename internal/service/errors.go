// Package service implements the booking engine: slot admission, the
// booking status machine with its payment side effects, and idempotent
// finalization of authorized payments.
package service

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers.  Handlers map codes to HTTP
// statuses; the code string is also returned to clients verbatim.
type Code string

const (
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeInvalidAction       Code = "INVALID_ACTION"
	CodeTokenMismatch       Code = "TOKEN_MISMATCH"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeSlotUnavailable     Code = "SLOT_UNAVAILABLE"
	CodeSlotFull            Code = "SLOT_FULL"
	CodePriceMismatch       Code = "PRICE_MISMATCH"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeCaptureFailed       Code = "CAPTURE_FAILED"
	CodeRefundFailed        Code = "REFUND_FAILED"
	CodePaymentNotCompleted Code = "PAYMENT_NOT_COMPLETED"
	CodePaymentExpired      Code = "PAYMENT_EXPIRED"
	CodeDataNotFound        Code = "DATA_NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInternal            Code = "INTERNAL"
)

// Error is a coded service failure.  Err, when set, is the underlying
// cause and is reachable through errors.Unwrap.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so
// errors.Is(err, &Error{Code: CodeSlotFull}) works without sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError builds a coded error.
func NewError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}
