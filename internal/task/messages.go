package task

import "github.com/firefly-engineering/shellcore/internal/signals"

// TxMessage is sent from the shell to a running task.
type TxMessage interface {
	txMessage()
}

// InputMessage writes text to the task's stdin.
type InputMessage struct {
	Text string
}

// KillMessage kills every running process of the task.
type KillMessage struct{}

// SignalMessage delivers a signal to every running process of the task.
type SignalMessage struct {
	Signal signals.Signal
}

// CloseInputMessage delivers EOF to the stdin of the first process. Groups
// started later in the chain get EOF as well.
type CloseInputMessage struct{}

// TerminateMessage stops the running processes and skips the rest of the chain.
type TerminateMessage struct{}

func (InputMessage) txMessage()      {}
func (KillMessage) txMessage()       {}
func (SignalMessage) txMessage()     {}
func (TerminateMessage) txMessage()  {}
func (CloseInputMessage) txMessage() {}

// RxMessage is sent from a task back to the shell.
type RxMessage interface {
	rxMessage()
}

// OutputMessage carries output routed to the shell's stdout and stderr.
type OutputMessage struct {
	Stdout string
	Stderr string
}

// ErrorMessage reports a failure while running the task.
type ErrorMessage struct {
	Err *TaskError
}

func (OutputMessage) rxMessage() {}
func (ErrorMessage) rxMessage()  {}
