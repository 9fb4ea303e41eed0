// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is any failure that has not been classified.
	KindInternal Kind = iota
	// KindValidation is a bad release type, version or option.
	KindValidation
	// KindUserCancelled is a declined confirmation or an aborted prompt.
	KindUserCancelled
	// KindPublishRejected is a non-OTP publish failure.
	KindPublishRejected
	// KindOTPRequired is a publish that kept failing for lack of a valid one-time password.
	KindOTPRequired
	// KindVCSPrecondition is a repository state that forbids releasing.
	KindVCSPrecondition
	// KindLintFailed is an aggregated strict-mode lint failure.
	KindLintFailed
)

// Error attaches a Kind to an error.
type Error struct {
	Kind Kind
	Err  error
}

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUserCancelled:
		return "cancelled"
	case KindPublishRejected:
		return "publish rejected"
	case KindOTPRequired:
		return "otp required"
	case KindVCSPrecondition:
		return "vcs precondition"
	case KindLintFailed:
		return "lint failed"
	default:
		return "internal"
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. A nil err stays nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Errorf formats an error of the given kind. %w verbs are honoured.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Cancelled reports a user cancellation with the given reason.
func Cancelled(reason string) error {
	return &Error{Kind: KindUserCancelled, Err: errors.New(reason)}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsCancelled reports whether err is a user cancellation.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindUserCancelled
}
