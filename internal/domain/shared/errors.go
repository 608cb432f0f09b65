// Package shared holds the types every ledger package agrees on: owners,
// events, the clock, and the error kinds. It imports nothing outside the
// standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Callers test for them with errors.Is or the Is* helpers;
// transports map them onto status codes.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value is empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrTooLong         = errors.New("value too long")

	// ErrOverflow means a counter would wrap. Nothing is written.
	ErrOverflow = errors.New("counter overflow")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access denied")

	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
)

var validationKinds = []error{ErrValidation, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange, ErrTooLong}

// DomainError carries where a failure happened (Domain, Op), what kind it is,
// and optionally the error that caused it.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewDomainError creates an error of the given kind.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError is NewDomainError with a cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the outermost DomainError in err's chain, or nil.
func KindOf(err error) error {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsForbidden(err error) bool     { return errors.Is(err, ErrForbidden) }
func IsUnauthorized(err error) bool  { return errors.Is(err, ErrUnauthorized) }
func IsOverflow(err error) bool      { return errors.Is(err, ErrOverflow) }

// IsValidation reports any of the input validation kinds.
func IsValidation(err error) bool {
	for _, kind := range validationKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
