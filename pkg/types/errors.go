package types

import (
	"errors"
	"fmt"
)

// ErrLockNotAcquired is returned by lock.WithLock when every attempt to
// take the named lock failed. Internal only; callers decide whether it
// surfaces.
var ErrLockNotAcquired = errors.New("lock not acquired")

// NotFoundError reports an absent certificate, challenge token, or node
type NotFoundError struct {
	Kind string // "certificate", "challenge", "node", "entry"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// NewNotFound builds a NotFoundError for the given entity kind and key
func NewNotFound(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError reports rejected input: modulus mismatch, bad PEM
// headers, empty domain lists.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidation builds a ValidationError with the given reason
func NewValidation(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RenewalError wraps an ACME client failure with the affected domains
type RenewalError struct {
	Domains []string
	Cause   error
}

func (e *RenewalError) Error() string {
	return fmt.Sprintf("certificate renewal failed for %v: %v", e.Domains, e.Cause)
}

func (e *RenewalError) Unwrap() error {
	return e.Cause
}

// ExpiredError reports an operation on a certificate past its expiry
type ExpiredError struct {
	ID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("certificate expired: %s", e.ID)
}

// SubprocessError carries the combined output of a failed external command
type SubprocessError struct {
	Command string
	Output  string
	Cause   error
}

func (e *SubprocessError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Command, e.Cause, e.Output)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Cause)
}

func (e *SubprocessError) Unwrap() error {
	return e.Cause
}
