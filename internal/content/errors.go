package content

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindPermissionDenied   Kind = "permission_denied"
	KindConflict           Kind = "conflict"
	KindExpired            Kind = "expired"
	KindTransactionFailure Kind = "transaction_failure"
)

// Error is the typed failure returned by the content service. Details
// carry what a caller needs to decide on a retry, e.g. missing ids or the
// current version.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func notFound(message string, details map[string]any) *Error {
	return newError(KindNotFound, message, details)
}

func validation(message string, details map[string]any) *Error {
	return newError(KindValidation, message, details)
}

func permissionDenied(message string) *Error {
	return newError(KindPermissionDenied, message, nil)
}

func conflict(message string, details map[string]any) *Error {
	return newError(KindConflict, message, details)
}

func expired(message string, details map[string]any) *Error {
	return newError(KindExpired, message, details)
}

func transactionFailure(message string, err error) *Error {
	return &Error{Kind: KindTransactionFailure, Message: message, Err: err}
}

// AsError returns the typed error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if typed, ok := AsError(err); ok {
		return typed.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
