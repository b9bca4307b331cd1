package engine

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable classification carried on every
// client-caused rejection. Transports map kinds onto status codes; callers
// should never retry any of them.
type Kind string

const (
	KindInvalidIdentity     Kind = "invalid_identity"
	KindNotFound            Kind = "not_found"
	KindInconsistentRequest Kind = "inconsistent_request"
	KindIdentityMismatch    Kind = "identity_mismatch"
	KindDuplicateConversion Kind = "duplicate_conversion"
	KindInvalidArgument     Kind = "invalid_argument"
	KindInternal            Kind = "internal"
)

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsClientError reports whether err is caused by the caller rather than the
// store or transport. Client errors are 4xx-equivalent and not retryable.
func IsClientError(err error) bool {
	return KindOf(err) != KindInternal
}
