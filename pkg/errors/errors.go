package errors

import (
	goErrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string, args ...interface{}) error {
	if len(args) == 0 {
		return goErrors.New(msg)
	}
	return fmt.Errorf(msg, args...)
}

// contextError annotates an error with a short description of what was
// happening when it occurred.
type contextError struct {
	err     error
	context string
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext wraps `err` with `context`. The wrapped error can still be
// inspected with `Is`, `As`, and `RootCause`.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{err: err, context: context}
}

// RootCause returns the innermost error in the chain.
func RootCause(err error) error {
	for {
		next := goErrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// FriendlyError is an error whose message is meant to be shown directly to
// the user, without any of the context used for debugging.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a new FriendlyError.
func NewFriendlyError(template string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(template, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message that should be shown to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return goErrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return goErrors.As(err, target)
}
