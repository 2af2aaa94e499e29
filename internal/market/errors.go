package market

import (
	"errors"
	"fmt"

	"nearhand/internal/repo"
)

// Code classifies operation failures independently of transport.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeExpired      Code = "EXPIRED"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Error is a coded failure safe to surface to callers.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// E builds a coded error.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the failure code; anything uncoded is an internal error.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// storeError maps repository sentinels shared across operations. Sentinels
// with operation-specific meanings (ErrNoRowsUpdated) are mapped at the call
// site instead.
func storeError(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return E(CodeNotFound, "resource not found")
	case errors.Is(err, repo.ErrOperationInFlight):
		return E(CodeConflict, "operation already in progress, retry later")
	case errors.Is(err, repo.ErrActiveTaskExists):
		return E(CodeConflict, "you already have an active task")
	case errors.Is(err, repo.ErrInsufficientFunds):
		return E(CodeConflict, "amount exceeds available balance")
	}
	return err
}
