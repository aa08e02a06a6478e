package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firefly-engineering/shellcore/internal/logging"
	"github.com/firefly-engineering/shellcore/internal/process"
	"github.com/firefly-engineering/shellcore/internal/signals"
)

const defaultTick = 10 * time.Millisecond

// Observer is notified about the lifecycle of every process a Manager runs.
type Observer interface {
	TaskStarted(t *Task, pid int)
	TaskExited(t *Task, rc uint8, elapsed time.Duration)
	TaskFailed(t *Task, err error)
}

// Manager executes a task chain in its own goroutine.
type Manager struct {
	head *Task

	dir      string
	env      []string
	tick     time.Duration
	observer Observer
	input    *string

	// stdinClosed is set once the user input has ended. Every group
	// started afterwards gets end of file on stdin right away. Only the
	// loop goroutine touches it after Start.
	stdinClosed bool

	started atomic.Bool
	running atomic.Bool

	inboxMu sync.Mutex
	inbox   []RxMessage

	tx     chan TxMessage
	done   chan struct{}
	cancel context.CancelFunc

	exitCode uint8
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDir sets the working directory of every process.
func WithDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.dir = dir
	}
}

// WithEnv sets the environment of every process.
func WithEnv(env []string) ManagerOption {
	return func(m *Manager) {
		m.env = env
	}
}

// WithTick sets the polling interval of the execution loop.
func WithTick(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.tick = d
		}
	}
}

// WithInput feeds text to the stdin of the first process group, followed
// by end of file.
func WithInput(text string) ManagerOption {
	return func(m *Manager) {
		m.input = &text
	}
}

// WithClosedStdin starts every process group with its stdin already at
// end of file, for sessions whose input has ended.
func WithClosedStdin() ManagerOption {
	return func(m *Manager) {
		m.stdinClosed = true
	}
}

// WithObserver registers an observer for process lifecycle events.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}

// NewManager creates a manager for the chain starting at head.
func NewManager(head *Task, opts ...ManagerOption) *Manager {
	m := &Manager{
		head: head,
		tick: defaultTick,
		tx:   make(chan TxMessage, 64),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the execution loop.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return NewError(AlreadyRunning, "manager already started")
	}
	if m.head == nil {
		close(m.done)
		return NewError(CouldNotStartTask, "empty task chain")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.running.Store(true)
	go m.loop(ctx)
	return nil
}

// IsRunning reports whether the chain is still executing.
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Done is closed when the chain finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// FetchMessages drains the messages produced so far without blocking.
func (m *Manager) FetchMessages() ([]RxMessage, error) {
	if !m.started.Load() {
		return nil, NewError(NotRunning, "manager not started")
	}
	m.inboxMu.Lock()
	defer m.inboxMu.Unlock()
	msgs := m.inbox
	m.inbox = nil
	return msgs, nil
}

// SendMessage forwards a message to the running chain.
func (m *Manager) SendMessage(msg TxMessage) error {
	if !m.running.Load() {
		return NewError(NotRunning, "no task is running")
	}
	select {
	case m.tx <- msg:
		return nil
	case <-m.done:
		return NewError(NotRunning, "no task is running")
	}
}

// Join waits for the chain to finish and returns the exit code of the last
// task that ran.
func (m *Manager) Join() (uint8, error) {
	if !m.started.Load() {
		return 255, NewError(NotRunning, "manager not started")
	}
	<-m.done
	if m.cancel != nil {
		m.cancel()
	}
	return m.exitCode, nil
}

func (m *Manager) push(msg RxMessage) {
	m.inboxMu.Lock()
	m.inbox = append(m.inbox, msg)
	m.inboxMu.Unlock()
}

func (m *Manager) pushError(code ErrorCode, format string, args ...any) {
	m.push(ErrorMessage{Err: NewError(code, fmt.Sprintf(format, args...))})
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	defer m.running.Store(false)

	var rc uint8
	relation := Unrelated
	for group := m.head; group != nil; {
		members, next := pipeGroup(group)
		if relation.Satisfied(rc) {
			var aborted bool
			rc, aborted = m.runGroup(ctx, members)
			if aborted {
				logging.Debug("task chain terminated", "task", group.String(), "rc", rc)
				break
			}
		}
		relation = members[len(members)-1].Relation
		group = next
	}
	m.exitCode = rc
}

// pipeGroup returns the tasks linked by Pipe starting at head, and the first
// task after them.
func pipeGroup(head *Task) ([]*Task, *Task) {
	members := []*Task{head}
	cur := head
	for cur.Relation == Pipe && cur.Next != nil {
		cur = cur.Next
		members = append(members, cur)
	}
	return members, cur.Next
}

type member struct {
	task     *Task
	proc     *process.Process
	started  time.Time
	finished bool
	rc       uint8
}

func (m *Manager) runGroup(ctx context.Context, tasks []*Task) (uint8, bool) {
	members := make([]*member, len(tasks))
	var files []*os.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	var prevReader *os.File
	for i, t := range tasks {
		mb := &member{task: t}
		members[i] = mb

		opts := []process.Option{process.WithDir(m.dir)}
		if m.env != nil {
			opts = append(opts, process.WithEnv(m.env))
		}
		if prevReader != nil {
			opts = append(opts, process.WithStdin(prevReader))
		}

		var stdoutFile, pipeWriter, nextReader *os.File
		ok := true
		if t.Stdout.Kind == RedirectFile {
			f, err := openRedirect(t.Stdout)
			if err != nil {
				m.pushError(IoError, "could not open %s: %v", t.Stdout.Path, err)
				ok = false
			} else {
				files = append(files, f)
				stdoutFile = f
				opts = append(opts, process.WithStdout(f))
			}
		}
		if i < len(tasks)-1 {
			r, w, err := os.Pipe()
			if err != nil {
				m.pushError(IoError, "could not create pipe: %v", err)
				ok = false
			} else {
				nextReader = r
				pipeWriter = w
				if stdoutFile == nil {
					opts = append(opts, process.WithStdout(w))
				}
			}
		}

		switch t.Stderr.Kind {
		case RedirectFile:
			f, err := openRedirect(t.Stderr)
			if err != nil {
				m.pushError(IoError, "could not open %s: %v", t.Stderr.Path, err)
				ok = false
			} else {
				files = append(files, f)
				opts = append(opts, process.WithStderr(f))
			}
		case RedirectStdout:
			if stdoutFile != nil {
				opts = append(opts, process.WithStderr(stdoutFile))
			} else if pipeWriter != nil {
				opts = append(opts, process.WithStderr(pipeWriter))
			}
		}

		if ok {
			p, err := process.Exec(t.Command, opts...)
			if err != nil {
				mb.rc = startExitCode(err)
				m.pushError(CouldNotStartTask, "%v", err)
				if m.observer != nil {
					m.observer.TaskFailed(t, err)
				}
			} else {
				mb.proc = p
				mb.started = time.Now()
				logging.Debug("process started", "argv", t.Command, "pid", p.Pid())
				if m.observer != nil {
					m.observer.TaskStarted(t, p.Pid())
				}
			}
		} else {
			mb.rc = 1
		}
		if mb.proc == nil {
			mb.finished = true
			t.setExitCode(mb.rc)
		}

		// The children hold their own copies now.
		if prevReader != nil {
			_ = prevReader.Close()
		}
		if pipeWriter != nil {
			_ = pipeWriter.Close()
		}
		prevReader = nextReader
	}
	if prevReader != nil {
		_ = prevReader.Close()
	}
	if m.input != nil {
		m.feed(members[0], *m.input)
		m.input = nil
	} else if first := members[0]; m.stdinClosed && first.proc != nil {
		first.proc.CloseStdin()
	}

	aborted := false
	cancelled := ctx.Done()
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		allDone := true
		for _, mb := range members {
			if mb.finished {
				continue
			}
			out, err := mb.proc.Read(0)
			m.route(mb.task, out)
			if errors.Is(err, process.ErrBrokenPipe) && !mb.proc.IsRunning() {
				m.finish(mb)
				continue
			}
			allDone = false
		}
		if allDone {
			break
		}

		select {
		case msg := <-m.tx:
			if m.handle(msg, members) {
				aborted = true
			}
		case <-cancelled:
			cancelled = nil
			m.terminate(members)
			aborted = true
		case <-ticker.C:
		}
	}

	last := members[len(members)-1]
	return last.rc, aborted
}

func (m *Manager) feed(mb *member, text string) {
	if mb.proc == nil {
		return
	}
	if text != "" {
		if err := mb.proc.Write(text); err != nil && !errors.Is(err, process.ErrBrokenPipe) {
			m.pushError(BrokenPipe, "could not write input: %v", err)
		}
	}
	mb.proc.CloseStdin()
}

func (m *Manager) finish(mb *member) {
	mb.finished = true
	status, _ := mb.proc.ExitStatus()
	mb.rc = status
	mb.task.setExitCode(status)
	elapsed := time.Since(mb.started)
	logging.Debug("process exited", "argv", mb.task.Command, "rc", status, "elapsed", elapsed)
	if m.observer != nil {
		m.observer.TaskExited(mb.task, status, elapsed)
	}
}

// route forwards output according to the task's redirections. Streams going
// to files or pipes never reach this point.
func (m *Manager) route(t *Task, out process.Output) {
	if out.Empty() {
		return
	}
	var msg OutputMessage
	appendTo := func(kind RedirectKind, data string) {
		if kind == RedirectStderr {
			msg.Stderr += data
		} else {
			msg.Stdout += data
		}
	}
	if out.Stdout != "" {
		appendTo(t.Stdout.Kind, out.Stdout)
	}
	if out.Stderr != "" {
		appendTo(t.Stderr.Kind, out.Stderr)
	}
	m.push(msg)
}

// handle applies a message to the running group and reports whether the
// chain must stop.
func (m *Manager) handle(msg TxMessage, members []*member) bool {
	switch msg := msg.(type) {
	case InputMessage:
		first := members[0]
		if first.proc == nil || first.finished {
			m.pushError(BrokenPipe, "task does not accept input")
			return false
		}
		if err := first.proc.Write(msg.Text); err != nil {
			m.pushError(BrokenPipe, "could not write input: %v", err)
		}
	case KillMessage:
		for _, mb := range members {
			if mb.proc == nil || mb.finished {
				continue
			}
			if err := mb.proc.Kill(); err != nil {
				m.pushError(KillError, "%v", err)
			}
		}
	case SignalMessage:
		m.raise(members, msg.Signal)
	case CloseInputMessage:
		m.stdinClosed = true
		if first := members[0]; first.proc != nil && !first.finished {
			first.proc.CloseStdin()
		}
	case TerminateMessage:
		m.terminate(members)
		return true
	}
	return false
}

func (m *Manager) raise(members []*member, sig signals.Signal) {
	for _, mb := range members {
		if mb.proc == nil || !mb.proc.IsRunning() {
			continue
		}
		if err := mb.proc.Raise(sig); err != nil {
			m.pushError(KillError, "%v", err)
		}
	}
}

func (m *Manager) terminate(members []*member) {
	m.raise(members, signals.SIGTERM)
	for _, mb := range members {
		if mb.proc == nil || !mb.proc.IsRunning() {
			continue
		}
		if err := mb.proc.Kill(); err != nil {
			m.pushError(KillError, "%v", err)
		}
	}
}

func openRedirect(r Redirection) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if r.Mode == Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(r.Path, flags, 0644)
}
