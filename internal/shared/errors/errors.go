// Package errors provides the process-level error classification used
// to derive subcommand exit statuses.
package errors

import (
	"errors"
	"fmt"
)

// ExitStatus is a subcommand exit code.
type ExitStatus int

const (
	ExitOK         ExitStatus = 0
	ExitFatal      ExitStatus = 1
	ExitUnexpected ExitStatus = 2
)

// FatalError marks an unrecoverable failure, for example a lost Redis
// connection. Subcommands terminating with a FatalError exit with
// status 1; any other error exits with status 2.
type FatalError struct {
	Message string
	Err     error
}

// Fatal wraps an error as fatal.
func Fatal(message string, err error) *FatalError {
	return &FatalError{Message: message, Err: err}
}

// Fatalf builds a fatal error from a format string.
func Fatalf(format string, args ...any) *FatalError {
	return &FatalError{Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap supports errors.Is and errors.As.
func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether the chain contains a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// StatusFor maps an error to the exit status of the enclosing
// subcommand.
func StatusFor(err error) ExitStatus {
	switch {
	case err == nil:
		return ExitOK
	case IsFatal(err):
		return ExitFatal
	default:
		return ExitUnexpected
	}
}
