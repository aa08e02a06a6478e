package task

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
)

// ErrorCode classifies a TaskError.
type ErrorCode int

const (
	// CouldNotStartTask: the command is invalid or not permitted.
	CouldNotStartTask ErrorCode = iota
	// IoError: a redirection could not be set up or written.
	IoError
	// BrokenPipe: a stream of the task was no longer usable.
	BrokenPipe
	// ProcessTerminated: the task was already gone.
	ProcessTerminated
	// KillError: a signal could not be delivered.
	KillError
	// AlreadyRunning: the manager was started twice.
	AlreadyRunning
	// NotRunning: the manager is not accepting messages.
	NotRunning
)

func (c ErrorCode) String() string {
	switch c {
	case CouldNotStartTask:
		return "could not start task"
	case IoError:
		return "I/O error"
	case BrokenPipe:
		return "broken pipe"
	case ProcessTerminated:
		return "process terminated"
	case KillError:
		return "could not signal process"
	case AlreadyRunning:
		return "task already running"
	case NotRunning:
		return "task not running"
	default:
		return fmt.Sprintf("task error %d", int(c))
	}
}

// TaskError is an error raised by a task or its manager.
type TaskError struct {
	Code    ErrorCode
	Message string
}

// NewError creates a TaskError.
func NewError(code ErrorCode, message string) *TaskError {
	return &TaskError{Code: code, Message: message}
}

func (e *TaskError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// startExitCode maps a spawn failure to the exit code the shell reports.
func startExitCode(err error) uint8 {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return shellerrors.ExitCommandNotFound
	case errors.Is(err, os.ErrPermission):
		return shellerrors.ExitNotExecutable
	default:
		return shellerrors.ExitAborted
	}
}
