// Package errors carries the exit status of failed shell operations.
//
// A ShellError pairs a message with the status a POSIX shell would report:
// 2 for syntax errors and bad builtin usage, 126 for a command that cannot
// be executed, 127 for one that cannot be found, 130 after an interrupt.
// An empty message makes a silent status, which is how `exit 3` leaves
// the process:
//
//	return errors.New(3, "")
//
// Errors compare by code and message, so a wrapped Terminated() still
// matches:
//
//	if errors.Is(err, errors.Terminated()) {
//	    // the core has exited
//	}
//
// GetExitCode reads the status back out of any error chain and falls back
// to 1.
package errors
