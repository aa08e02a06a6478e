package metrics

import (
	"path/filepath"
	"time"

	"github.com/firefly-engineering/shellcore/internal/task"
)

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess     ResultLabel = "success"
	ResultFailure     ResultLabel = "failure"
	ResultStartFailed ResultLabel = "start_failed"
)

// CommandKind says how a command was resolved.
type CommandKind string

const (
	KindProcess  CommandKind = "process"
	KindBuiltin  CommandKind = "builtin"
	KindFunction CommandKind = "function"
)

// Recorder receives shell metrics.
type Recorder interface {
	ObserveTaskDuration(command string, d time.Duration)
	IncTaskResult(result ResultLabel)
	IncCommand(kind CommandKind)
	IncParseError()
	ObserveReadlineDuration(d time.Duration)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(ResultLabel)                 {}
func (NoopRecorder) IncCommand(CommandKind)                    {}
func (NoopRecorder) IncParseError()                            {}
func (NoopRecorder) ObserveReadlineDuration(time.Duration)     {}

// ResultFor classifies an exit code.
func ResultFor(rc uint8) ResultLabel {
	if rc == 0 {
		return ResultSuccess
	}
	return ResultFailure
}

// TaskObserver feeds task lifecycle events into a Recorder.
type TaskObserver struct {
	Recorder Recorder
}

var _ task.Observer = TaskObserver{}

func (o TaskObserver) TaskStarted(t *task.Task, pid int) {
	o.Recorder.IncCommand(KindProcess)
}

func (o TaskObserver) TaskExited(t *task.Task, rc uint8, elapsed time.Duration) {
	o.Recorder.ObserveTaskDuration(commandLabel(t), elapsed)
	o.Recorder.IncTaskResult(ResultFor(rc))
}

func (o TaskObserver) TaskFailed(t *task.Task, err error) {
	o.Recorder.IncTaskResult(ResultStartFailed)
}

// commandLabel keeps label cardinality bounded to program names.
func commandLabel(t *task.Task) string {
	if len(t.Command) == 0 {
		return ""
	}
	return filepath.Base(t.Command[0])
}
