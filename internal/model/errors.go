package model

import (
	"errors"
	"fmt"
)

// Fatal error classes. Each one aborts the run; callers match them with
// errors.Is after wrapping with fmt.Errorf("...: %w", ...).
var (
	// ErrConfig covers missing or empty settings and an unusable target path.
	ErrConfig = errors.New("configuration error")

	// ErrPrecondition means the source folder does not exist in the repository.
	ErrPrecondition = errors.New("precondition failed")

	// ErrAuth means the repository connection could not be established.
	ErrAuth = errors.New("authentication failed")

	// ErrQuery means a structured query could not be executed.
	ErrQuery = errors.New("query failed")

	// ErrNotFound is returned by object resolution when no object matches.
	ErrNotFound = errors.New("object not found")
)

// ExitCode defines the CLI exit codes. Scripts can use them to tell a
// configuration problem from a repository problem.
type ExitCode int

const (
	// ExitSuccess indicates the export completed.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates invalid settings or an unusable target path.
	ExitConfigError ExitCode = 2

	// ExitPreconditionFailed indicates the source folder was not found.
	ExitPreconditionFailed ExitCode = 3

	// ExitAuthFailed indicates the repository connection failed.
	ExitAuthFailed ExitCode = 4

	// ExitQueryFailed indicates a repository query failed mid-run.
	ExitQueryFailed ExitCode = 5
)

// ExitCodeFor maps an error to the exit code of its fatal class.
func ExitCodeFor(err error) ExitCode {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrConfig):
		return ExitConfigError
	case errors.Is(err, ErrPrecondition):
		return ExitPreconditionFailed
	case errors.Is(err, ErrAuth):
		return ExitAuthFailed
	case errors.Is(err, ErrQuery):
		return ExitQueryFailed
	default:
		return ExitGeneralError
	}
}

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the message, followed by the underlying error if present.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
