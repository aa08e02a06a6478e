package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/shellcore/internal/task"
)

func TestLogger_SessionTrail(t *testing.T) {
	logger := NewLogger(t.TempDir())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rc := 1

	trail := []Event{
		{Timestamp: start, Type: EventSessionStart, Session: "s1", Details: "/home/me"},
		{Timestamp: start.Add(time.Second), Type: EventCommand, Session: "s1", Command: "ls -l | grep go", ExitCode: &rc},
		{Timestamp: start.Add(2 * time.Second), Type: EventSessionEnd, Session: "s1", ExitCode: &rc},
	}
	for _, e := range trail {
		require.NoError(t, logger.Log(e))
	}

	events, err := logger.Events("s1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.True(t, e.Timestamp.Equal(trail[i].Timestamp), "event %d timestamp", i)
		assert.Equal(t, trail[i].Type, e.Type)
		assert.Equal(t, trail[i].Command, e.Command)
		assert.Equal(t, trail[i].Details, e.Details)
	}
	require.NotNil(t, events[1].ExitCode)
	assert.Equal(t, 1, *events[1].ExitCode)
}

func TestLogger_StampsMissingTimestamp(t *testing.T) {
	logger := NewLogger(t.TempDir())
	require.NoError(t, logger.Log(Event{Type: EventError, Session: "s2", Details: "parse error"}))

	events, err := logger.Events("s2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.WithinDuration(t, time.Now(), events[0].Timestamp, time.Minute)
}

func TestLogger_EventsSkipsDamagedLines(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)
	require.NoError(t, logger.Log(Event{Type: EventSessionStart, Session: "s3"}))

	f, err := os.OpenFile(filepath.Join(dir, "s3.events.jsonl"), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{\"type\": \"comm\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, logger.Log(Event{Type: EventSessionEnd, Session: "s3"}))

	events, err := logger.Events("s3")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventSessionEnd, events[1].Type)
}

func TestLogger_Sessions(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	sessions, err := NewLogger(filepath.Join(dir, "missing")).Sessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	events, err := logger.Events("never-ran")
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, logger.Log(Event{Type: EventSessionStart, Session: "a"}))
	require.NoError(t, logger.Log(Event{Type: EventSessionStart, Session: "b"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0600))

	sessions, err = logger.Sessions()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, sessions)
}

func TestTaskObserver(t *testing.T) {
	logger := NewLogger(t.TempDir())
	obs := logger.Observer("sess")

	tk := task.New([]string{"echo", "hi"})
	obs.TaskStarted(tk, 42)
	obs.TaskExited(tk, 3, 10*time.Millisecond)
	obs.TaskFailed(task.New([]string{"nope"}), errors.New("not found"))

	events, err := logger.Events("sess")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, EventTaskStart, events[0].Type)
	assert.Equal(t, 42, events[0].PID)
	assert.Equal(t, "echo hi", events[0].Command)

	require.NotNil(t, events[1].ExitCode)
	assert.Equal(t, 3, *events[1].ExitCode)
	assert.Equal(t, 10*time.Millisecond, events[1].Duration)

	assert.Equal(t, EventTaskFail, events[2].Type)
	assert.Equal(t, "not found", events[2].Details)
}

func TestTaskObserver_ConcurrentPipelineMembers(t *testing.T) {
	logger := NewLogger(t.TempDir())
	obs := logger.Observer("pipe")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk := task.New([]string{"member", fmt.Sprint(i)})
			obs.TaskStarted(tk, 1000+i)
			obs.TaskExited(tk, 0, time.Millisecond)
		}()
	}
	wg.Wait()

	events, err := logger.Events("pipe")
	require.NoError(t, err)
	assert.Len(t, events, 40)
}
