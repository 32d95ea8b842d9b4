package user

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("email already in use")
	ErrCodeExists  = errors.New("referral code already in use")
)

// Kind classifies ledger failures. Handlers map kinds to HTTP status codes.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindDuplicateEmail
	KindReferralNotFound
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicateEmail:
		return "duplicate_email"
	case KindReferralNotFound:
		return "referral_not_found"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a field-level ledger error. Err holds the underlying cause for
// storage failures and is never shown to API callers.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func storageError(err error) *Error {
	return &Error{Kind: KindStorage, Field: "server", Message: "Sorry, there was a problem processing the request", Err: err}
}

// Errors joins several ledger errors into one error value for callers that
// only look at the error return.
type Errors []*Error

func (es Errors) Error() string {
	if len(es) == 0 {
		return "no errors"
	}
	msg := es[0].Error()
	if len(es) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(es)-1)
	}
	return msg
}

// Has reports whether any error in es has kind k.
func (es Errors) Has(k Kind) bool {
	for _, e := range es {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// KindOf returns the kind of the first *Error found in err's chain.
func KindOf(err error) (Kind, bool) {
	var es Errors
	if errors.As(err, &es) && len(es) > 0 {
		return es[0].Kind, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
