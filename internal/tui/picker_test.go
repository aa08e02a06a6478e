package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/shellcore/internal/history"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEntries() []history.Entry {
	return []history.Entry{
		{ID: 1, Session: "s1", Command: "make test", ExitCode: 0, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: 2, Session: "s1", Command: "ls -l", ExitCode: 0, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 3, Session: "s2-0123456789abcdef", Command: "make test", ExitCode: 2, CreatedAt: now.Add(-90 * time.Second)},
	}
}

func TestFormatAge(t *testing.T) {
	tests := map[time.Duration]string{
		30 * time.Second:             "30s",
		5 * time.Minute:              "5m",
		2*time.Hour + 15*time.Minute: "2h 15m",
		50 * time.Hour:               "2d 2h",
	}
	for d, want := range tests {
		assert.Equal(t, want, formatAge(d), "formatAge(%v)", d)
	}
	assert.Equal(t, "0123456...", truncate("0123456789abcdef", 10))
	assert.Equal(t, "short", truncate("short", 10))
}

func TestNewPicker_CollapsesRepeatedCommands(t *testing.T) {
	m := NewPicker(testEntries(), now)
	items := m.list.Items()
	require.Len(t, items, 2)

	newest := items[0].(entryItem)
	assert.Equal(t, "make test", newest.Title())
	assert.Equal(t, int64(3), newest.entry.ID)
	assert.Equal(t, 2, newest.runs)
	assert.Equal(t, "1m", newest.age)
	assert.Equal(t, "✗ 2 | 1m ago | 2 runs | s2-012345...", newest.Description())

	older := items[1].(entryItem)
	assert.Equal(t, "ls -l", older.FilterValue())
	assert.Equal(t, "✓ | 2h 0m ago | s1", older.Description())
}

func TestModel_Keys(t *testing.T) {
	tests := []struct {
		name    string
		key     tea.KeyMsg
		action  Action
		command string
	}{
		{"enter runs", tea.KeyMsg{Type: tea.KeyEnter}, ActionRun, "make test"},
		{"p prints", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}}, ActionPrint, "make test"},
		{"q quits", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, ActionQuit, ""},
		{"esc quits", tea.KeyMsg{Type: tea.KeyEsc}, ActionQuit, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, cmd := NewPicker(testEntries(), now).Update(tt.key)
			result := updated.(Model).Result()

			assert.Equal(t, tt.action, result.Action)
			assert.NotNil(t, cmd, "expected tea.Quit")
			if tt.command == "" {
				assert.Nil(t, result.Entry)
				return
			}
			require.NotNil(t, result.Entry)
			assert.Equal(t, tt.command, result.Entry.Command)
			assert.Empty(t, updated.(Model).View())
		})
	}
}

func TestModel_WindowSize(t *testing.T) {
	assert.Nil(t, Model{}.Init())

	updated, cmd := NewPicker(testEntries(), now).Update(tea.WindowSizeMsg{Width: 100, Height: 50})
	model := updated.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, 100, model.width)
	assert.Equal(t, 50, model.height)
	assert.Contains(t, model.View(), "[enter] Run")
}

func TestRunPicker_Empty(t *testing.T) {
	result, err := RunPicker(nil)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, result.Action)
}

func TestSimpleList(t *testing.T) {
	out := SimpleList(testEntries())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3, "SimpleList keeps every run")

	assert.Contains(t, lines[0], "make test")
	assert.Contains(t, lines[1], "ls -l")
	assert.Contains(t, lines[2], "✗")
	assert.NotContains(t, lines[0], "✗")

	assert.Equal(t, "No history recorded.\n", SimpleList(nil))
}
