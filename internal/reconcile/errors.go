// Package reconcile holds the quantity reconciliation rules: packaging
// conversion, shortfall tracking, delivery issue validation and shortfall
// allocation. Everything here is pure; callers pass snapshots and persist the
// returned copies.
package reconcile

import (
	"errors"
	"fmt"
)

// Kind classifies a reconciliation failure.
type Kind string

const (
	KindInvalidInput         Kind = "InvalidInput"
	KindMissingConfiguration Kind = "MissingConfiguration"
	KindOwnershipViolation   Kind = "OwnershipViolation"
	KindQuantityExceeded     Kind = "QuantityExceeded"
	KindProtectedRecord      Kind = "ProtectedRecord"
	KindDuplicateProcessing  Kind = "DuplicateProcessing"
)

func (k Kind) String() string {
	return string(k)
}

// Warning reports whether the kind is surfaced as a warning rather than a
// failure of the surrounding operation.
func (k Kind) Warning() bool {
	return k == KindMissingConfiguration || k == KindDuplicateProcessing
}

// Error is a reconciliation failure. Field names the input that triggered it
// when there is one.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrMissingConfiguration = &Error{Kind: KindMissingConfiguration}
	ErrOwnershipViolation   = &Error{Kind: KindOwnershipViolation}
	ErrQuantityExceeded     = &Error{Kind: KindQuantityExceeded}
	ErrProtectedRecord      = &Error{Kind: KindProtectedRecord}
	ErrDuplicateProcessing  = &Error{Kind: KindDuplicateProcessing}
)

// NewError builds a reconciliation error of kind for field.
func NewError(kind Kind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of a reconciliation error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsWarning reports whether err is a reconciliation warning.
func IsWarning(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.Warning()
}
