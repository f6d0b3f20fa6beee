// Package apperr carries the typed failure taxonomy shared by the group
// and message services. The Reason string on PermissionDenied and
// Validation errors is safe to surface to end users unmodified.
package apperr

import "errors"

type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindValidation       Kind = "validation"
	KindInvariant        Kind = "invariant_violation"
)

type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func NotFound(reason string) error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func PermissionDenied(reason string) error {
	return &Error{Kind: KindPermissionDenied, Reason: reason}
}

func Validation(reason string) error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func Invariant(reason string) error {
	return &Error{Kind: KindInvariant, Reason: reason}
}

// As unwraps err into an *Error if it carries one.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}
