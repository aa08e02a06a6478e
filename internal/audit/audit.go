// Package audit provides structured event logging for shell sessions.
// Events are stored as JSON Lines (JSONL) files, one per session.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/firefly-engineering/shellcore/internal/logging"
	"github.com/firefly-engineering/shellcore/internal/task"
)

// EventType classifies a session event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventCommand      EventType = "command"
	EventTaskStart    EventType = "task_start"
	EventTaskExit     EventType = "task_exit"
	EventTaskFail     EventType = "task_fail"
	EventError        EventType = "error"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      EventType     `json:"type"`
	Session   string        `json:"session"`
	Command   string        `json:"command,omitempty"`
	PID       int           `json:"pid,omitempty"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Details   string        `json:"details,omitempty"`
}

// Logger writes and reads audit events for sessions.
// Events are stored in {dir}/{session}.events.jsonl.
//
// A core and the observers of its tasks log from different goroutines;
// mu keeps each event on its own line.
type Logger struct {
	dir string
	mu  sync.Mutex
}

// NewLogger creates a new audit logger rooted at dir.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

// eventPath returns the path to the JSONL event log for a session.
func (l *Logger) eventPath(session string) string {
	return filepath.Join(l.dir, session+".events.jsonl")
}

// Log appends an event to the session's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.eventPath(event.Session)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// Events reads all events for a session in chronological order.
func (l *Logger) Events(session string) ([]Event, error) {
	f, err := os.Open(l.eventPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Sessions lists the sessions that have an audit log.
func (l *Logger) Sessions() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var sessions []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".events.jsonl"); ok && !e.IsDir() {
			sessions = append(sessions, name)
		}
	}
	return sessions, nil
}

// TaskObserver records the processes of a session as audit events.
type TaskObserver struct {
	logger  *Logger
	session string
}

var _ task.Observer = (*TaskObserver)(nil)

// Observer returns a task.Observer logging into session.
func (l *Logger) Observer(session string) *TaskObserver {
	return &TaskObserver{logger: l, session: session}
}

func (o *TaskObserver) log(event Event) {
	event.Session = o.session
	if err := o.logger.Log(event); err != nil {
		logging.Warn("audit log write failed", "session", o.session, "error", err)
	}
}

func (o *TaskObserver) TaskStarted(t *task.Task, pid int) {
	o.log(Event{Type: EventTaskStart, Command: strings.Join(t.Command, " "), PID: pid})
}

func (o *TaskObserver) TaskExited(t *task.Task, rc uint8, elapsed time.Duration) {
	code := int(rc)
	o.log(Event{Type: EventTaskExit, Command: strings.Join(t.Command, " "), ExitCode: &code, Duration: elapsed})
}

func (o *TaskObserver) TaskFailed(t *task.Task, err error) {
	o.log(Event{Type: EventTaskFail, Command: strings.Join(t.Command, " "), Details: err.Error()})
}
