package usecase

import (
	"errors"
	"fmt"

	"gynecology-chatbot/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error is what services return to the transport layer. Reason is a stable
// snake_case string safe to show to clients; Err is for logs only.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// storeError maps a store failure: domain.ErrNotFound becomes NOT_FOUND with
// notFoundReason, anything else INTERNAL_ERROR with internalReason.
func storeError(err error, notFoundReason, internalReason string) *Error {
	if errors.Is(err, domain.ErrNotFound) {
		return newError(ErrorNotFound, notFoundReason, err)
	}
	return newError(ErrorInternal, internalReason, err)
}
