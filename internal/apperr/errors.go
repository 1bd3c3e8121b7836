// Package apperr defines the error taxonomy shared by storage, tree mutation
// and the service layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error. The set is closed.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindQuotaExceeded      Kind = "QUOTA_EXCEEDED"
	KindTransactionFailed  Kind = "TRANSACTION_FAILED"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
	KindConflict           Kind = "CONFLICT"
	KindUnknown            Kind = "UNKNOWN_ERROR"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrQuotaExceeded      = &Error{Kind: KindQuotaExceeded, Message: "quota exceeded"}
	ErrTransactionFailed  = &Error{Kind: KindTransactionFailed, Message: "transaction failed"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict"}
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match when target is an *Error of the same kind, so
// errors.Is(err, apperr.ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is shorthand for a VALIDATION_ERROR with a reason.
func Validation(op, reason string) *Error {
	return New(KindValidation, op, reason)
}

// NotFound is shorthand for a NOT_FOUND error naming the missing id.
func NotFound(op, id string) *Error {
	return New(KindNotFound, op, fmt.Sprintf("note %q not found", id))
}

// KindOf extracts the kind of err; unclassified errors are UNKNOWN_ERROR.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Reason returns the human-readable message of a classified error, or
// err.Error() for anything else.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
