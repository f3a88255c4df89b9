// Package errclass defines the stable, machine-readable error classes of gxa.
package errclass

import "fmt"

// GXAError is a stable, machine-readable error class.
type GXAError struct {
	Code    string
	Message string
	Err     error
}

func (e *GXAError) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return e.Code
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
}

// Is matches any error of the same class regardless of message or cause.
func (e *GXAError) Is(target error) bool {
	t, ok := target.(*GXAError)
	return ok && e.Code == t.Code
}

// Unwrap exposes the underlying cause, if any.
func (e *GXAError) Unwrap() error {
	return e.Err
}

// WithMessage returns a new GXAError with the same Code but a specific message.
func (e *GXAError) WithMessage(msg string) *GXAError {
	return &GXAError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new GXAError with a formatted message.
func (e *GXAError) WithMessagef(format string, args ...any) *GXAError {
	return &GXAError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a new GXAError of the same class carrying err as its cause.
func (e *GXAError) Wrap(err error) *GXAError {
	return &GXAError{Code: e.Code, Err: err}
}

// Wrapf is Wrap with a formatted message.
func (e *GXAError) Wrapf(err error, format string, args ...any) *GXAError {
	return &GXAError{Code: e.Code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Stable error classes.
var (
	ErrNameInvalid         = &GXAError{Code: "E_NAME_INVALID"}
	ErrIneligible          = &GXAError{Code: "E_ROLLBACK_INELIGIBLE"}
	ErrSignatureInvalid    = &GXAError{Code: "E_SIGNATURE_INVALID"}
	ErrNoHandler           = &GXAError{Code: "E_NO_RESTORE_HANDLER"}
	ErrConcurrencyConflict = &GXAError{Code: "E_CONCURRENCY_CONFLICT"}
	ErrApplyFailed         = &GXAError{Code: "E_APPLY_FAILED"}
	ErrCancelled           = &GXAError{Code: "E_ROLLBACK_CANCELLED"}
	ErrEntryNotFound       = &GXAError{Code: "E_AUDIT_ENTRY_NOT_FOUND"}
	ErrEntityNotFound      = &GXAError{Code: "E_ENTITY_NOT_FOUND"}
	ErrSnapshotInvalid     = &GXAError{Code: "E_SNAPSHOT_INVALID"}
	ErrAuditChainBroken    = &GXAError{Code: "E_AUDIT_CHAIN_BROKEN"}
)
