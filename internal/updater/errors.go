package updater

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeCheckFailed    = "CHECK_FAILED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeNoUpdate       = "NO_UPDATE"
	ErrCodeApplyFailed    = "APPLY_FAILED"
	ErrCodeBackupFailed   = "BACKUP_FAILED"
	ErrCodeRollbackFailed = "ROLLBACK_FAILED"
	ErrCodeNoBackup       = "NO_BACKUP"
	ErrCodeDisabled       = "DISABLED"
)

// Error carries a code the API maps to a status.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Code returns the code of an updater error in err's chain, or "".
func Code(err error) string {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}
