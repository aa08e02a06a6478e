package errors

import (
	"errors"
	"fmt"
)

// Exit codes reported by the shell
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitUsage           = 2
	ExitNotExecutable   = 126
	ExitCommandNotFound = 127
	ExitInterrupted     = 130
	ExitAborted         = 255
)

// ShellError is the base error type for shellcore
type ShellError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ShellError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ShellError) Unwrap() error {
	return e.Cause
}

// Is matches another ShellError with the same code and message, so that
// errors.Is(err, Terminated()) works on returned errors.
func (e *ShellError) Is(target error) bool {
	t, ok := target.(*ShellError)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// ExitCode returns the exit code for this error
func (e *ShellError) ExitCode() int {
	return e.Code
}

// New creates a new ShellError
func New(code int, message string) *ShellError {
	return &ShellError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a ShellError
func Wrap(code int, message string, cause error) *ShellError {
	return &ShellError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

// OutOfHistoryRange returns an error for a history reference with no entry
func OutOfHistoryRange(index int) *ShellError {
	return New(ExitGeneralError, fmt.Sprintf("history index out of range: %d", index))
}

// NoSuchFileOrDirectory returns an error for a missing path
func NoSuchFileOrDirectory(path string) *ShellError {
	return New(ExitGeneralError, fmt.Sprintf("no such file or directory: %s", path))
}

// NotADirectory returns an error when a directory was expected
func NotADirectory(path string) *ShellError {
	return New(ExitGeneralError, fmt.Sprintf("not a directory: %s", path))
}

// PermissionDenied returns an error for an inaccessible path
func PermissionDenied(path string) *ShellError {
	return New(ExitNotExecutable, fmt.Sprintf("permission denied: %s", path))
}

// CommandNotFound returns an error for an unresolvable command
func CommandNotFound(name string) *ShellError {
	return New(ExitCommandNotFound, fmt.Sprintf("command not found: %s", name))
}

// ParseError returns an error for malformed input
func ParseError(message string, cause error) *ShellError {
	return Wrap(ExitUsage, message, cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *ShellError {
	return Wrap(ExitGeneralError, message, cause)
}

// IOError returns an error for failed reads and writes
func IOError(op string, cause error) *ShellError {
	return Wrap(ExitGeneralError, fmt.Sprintf("%s failed", op), cause)
}

// BadValue returns an error for invalid builtin arguments
func BadValue(message string) *ShellError {
	return New(ExitUsage, message)
}

// DirStackEmpty returns an error for popd on an empty directory stack
func DirStackEmpty() *ShellError {
	return New(ExitGeneralError, "directory stack empty")
}

// AlreadyRunning returns an error for a command line submitted while
// another one is still executing
func AlreadyRunning() *ShellError {
	return New(ExitGeneralError, "a command is already running")
}

// Terminated returns an error for input submitted after exit
func Terminated() *ShellError {
	return New(ExitAborted, "shell terminated")
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var shellErr *ShellError
	if errors.As(err, &shellErr) {
		return shellErr.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
