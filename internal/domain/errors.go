package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-checkable error taxonomy reported across the
// wire boundary alongside the human-readable message.
type ErrorCode string

const (
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeInvalidSignature    ErrorCode = "INVALID_SIGNATURE"
	CodeInvalidNonce        ErrorCode = "INVALID_NONCE"
	CodeOrderExpired        ErrorCode = "ORDER_EXPIRED"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
)

// CodedError pairs an ErrorCode with a human-readable message. Two
// CodedErrors compare equal under errors.Is when their codes match, so
// callers can branch on the sentinel values below regardless of message.
type CodedError struct {
	Code    ErrorCode
	Message string
}

func (e *CodedError) Error() string {
	return e.Message
}

// Is matches any CodedError with the same code.
func (e *CodedError) Is(target error) bool {
	var t *CodedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Errf builds a CodedError with a formatted message.
func Errf(code ErrorCode, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

// Sentinel errors for errors.Is comparisons.
var (
	ErrInsufficientBalance = &CodedError{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrInvalidSignature    = &CodedError{Code: CodeInvalidSignature, Message: "invalid signature"}
	ErrInvalidNonce        = &CodedError{Code: CodeInvalidNonce, Message: "invalid nonce"}
	ErrOrderExpired        = &CodedError{Code: CodeOrderExpired, Message: "order expired"}
	ErrNotFound            = &CodedError{Code: CodeNotFound, Message: "not found"}

	// ErrNoPendingTrades is a caller error from CreateBatch, not part of
	// the wire taxonomy: callers should check before invoking.
	ErrNoPendingTrades = errors.New("no pending trades")

	// ErrLockHeld means a distributed lock is held by another party.
	ErrLockHeld = errors.New("lock already held")
)
