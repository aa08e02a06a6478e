package task

import (
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// Relation describes how a task is linked to the next one in the chain.
type Relation int

const (
	// Unrelated: the next task always runs (";").
	Unrelated Relation = iota
	// And: the next task runs only if this one succeeded ("&&").
	And
	// Or: the next task runs only if this one failed ("||").
	Or
	// Pipe: both run at the same time, stdout feeding the next stdin ("|").
	Pipe
)

func (r Relation) String() string {
	switch r {
	case And:
		return "&&"
	case Or:
		return "||"
	case Pipe:
		return "|"
	default:
		return ";"
	}
}

// Satisfied reports whether a task following this relation runs, given the
// exit code of the previous one.
func (r Relation) Satisfied(rc uint8) bool {
	switch r {
	case And:
		return rc == 0
	case Or:
		return rc != 0
	default:
		return true
	}
}

// RedirectKind selects where a stream goes.
type RedirectKind int

const (
	RedirectStdout RedirectKind = iota
	RedirectStderr
	RedirectFile
)

// FileMode selects how a redirection file is opened.
type FileMode int

const (
	Truncate FileMode = iota
	Append
)

// Redirection is the destination of a task's stdout or stderr.
type Redirection struct {
	Kind RedirectKind
	Path string
	Mode FileMode
}

// ToStdout redirects to the shell's standard output.
func ToStdout() Redirection {
	return Redirection{Kind: RedirectStdout}
}

// ToStderr redirects to the shell's standard error.
func ToStderr() Redirection {
	return Redirection{Kind: RedirectStderr}
}

// ToFile redirects to path, truncating or appending.
func ToFile(path string, mode FileMode) Redirection {
	return Redirection{Kind: RedirectFile, Path: path, Mode: mode}
}

// Task is one command of a chain plus its relation with the next command.
type Task struct {
	Command  []string
	Stdout   Redirection
	Stderr   Redirection
	Relation Relation
	Next     *Task

	exitCode uint8
	hasExit  bool
}

// New creates a task writing to the shell's stdout and stderr.
func New(command []string) *Task {
	return &Task{
		Command: command,
		Stdout:  ToStdout(),
		Stderr:  ToStderr(),
	}
}

// Chain appends next at the end of the chain, linked by relation.
func (t *Task) Chain(next *Task, relation Relation) {
	tail := t
	for tail.Next != nil {
		tail = tail.Next
	}
	tail.Relation = relation
	tail.Next = next
}

// ResetNext detaches the rest of the chain.
func (t *Task) ResetNext() {
	t.Next = nil
	t.Relation = Unrelated
}

// Len returns the number of tasks in the chain starting at t.
func (t *Task) Len() int {
	n := 0
	for cur := t; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Clone deep-copies the chain without exit codes.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	return &Task{
		Command:  append([]string(nil), t.Command...),
		Stdout:   t.Stdout,
		Stderr:   t.Stderr,
		Relation: t.Relation,
		Next:     t.Next.Clone(),
	}
}

// ExitCode returns the exit code recorded after the task ran.
func (t *Task) ExitCode() (uint8, bool) {
	return t.exitCode, t.hasExit
}

func (t *Task) setExitCode(rc uint8) {
	t.exitCode = rc
	t.hasExit = true
}

// String renders the chain as a command line.
func (t *Task) String() string {
	var sb strings.Builder
	for cur := t; cur != nil; cur = cur.Next {
		sb.WriteString(shellquote.Join(cur.Command...))
		switch cur.Stdout.Kind {
		case RedirectFile:
			sb.WriteString(redirectOperator(">", cur.Stdout.Mode))
			sb.WriteString(shellquote.Join(cur.Stdout.Path))
		case RedirectStderr:
			sb.WriteString(" >&2")
		}
		switch cur.Stderr.Kind {
		case RedirectFile:
			sb.WriteString(redirectOperator(" 2>", cur.Stderr.Mode))
			sb.WriteString(shellquote.Join(cur.Stderr.Path))
		case RedirectStdout:
			sb.WriteString(" 2>&1")
		}
		if cur.Next != nil {
			if cur.Relation == Unrelated {
				sb.WriteString("; ")
			} else {
				sb.WriteString(" " + cur.Relation.String() + " ")
			}
		}
	}
	return sb.String()
}

func redirectOperator(op string, mode FileMode) string {
	if !strings.HasPrefix(op, " ") {
		op = " " + op
	}
	if mode == Append {
		return op + "> "
	}
	return op + " "
}
