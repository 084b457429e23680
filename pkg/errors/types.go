package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// NotFound is returned when peer discovery finishes without any host
// answering. Callers may retry or ask the user for an address.
type NotFound struct {
	Subnet string
	Port   int
}

func (err NotFound) Error() string {
	return fmt.Sprintf("no host in %s.0/24 is accepting connections on port %d",
		err.Subnet, err.Port)
}

// AuthenticationError is returned when the remote host rejects the supplied
// credentials. It must never be retried with the same secret.
type AuthenticationError struct {
	Host string
	User string
	Err  error
}

func (err AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication as %q on %s rejected", err.User, err.Host)
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err AuthenticationError) Unwrap() error {
	return err.Err
}

// TransportError is returned when a remote command or copy fails, either
// because the connection failed or because a command that was required to
// succeed exited non-zero.
type TransportError struct {
	Op       string
	Host     string
	ExitCode int
	Stderr   string
	Err      error
}

func (err TransportError) Error() string {
	msg := fmt.Sprintf("%s on %s", err.Op, err.Host)
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	if err.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", err.ExitCode)
	}
	if err.Stderr != "" {
		msg += ": " + err.Stderr
	}
	return msg
}

func (err TransportError) Unwrap() error {
	return err.Err
}

// IndexError is returned when a sync root can't be inventoried. It aborts the
// current sync attempt before anything is modified.
type IndexError struct {
	Root   string
	Reason string
	Err    error
}

func (err IndexError) Error() string {
	msg := fmt.Sprintf("index %q: %s", err.Root, err.Reason)
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err IndexError) Unwrap() error {
	return err.Err
}

// PreconditionError signals a usage error, such as applying a destructive
// plan that the caller never confirmed.
type PreconditionError struct {
	Reason string
}

func (err PreconditionError) Error() string {
	return "precondition failed: " + err.Reason
}

// IOError is returned when local files, such as key material, can't be read
// or written.
type IOError struct {
	Path string
	Err  error
}

func (err IOError) Error() string {
	return fmt.Sprintf("%s: %s", err.Path, err.Err)
}

func (err IOError) Unwrap() error {
	return err.Err
}
