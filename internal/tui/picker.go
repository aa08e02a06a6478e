package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/shellcore/internal/history"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionRun
	ActionPrint
	ActionQuit
)

// PickerResult holds the result of the picker
type PickerResult struct {
	Action Action
	Entry  *history.Entry
}

// entryItem is one distinct command line. entry is its newest run.
type entryItem struct {
	entry *history.Entry
	age   string
	runs  int
}

func (i entryItem) Title() string {
	return i.entry.Command
}

func (i entryItem) Description() string {
	statusIcon := "✓"
	if i.entry.ExitCode != 0 {
		statusIcon = fmt.Sprintf("✗ %d", i.entry.ExitCode)
	}
	desc := fmt.Sprintf("%s | %s ago", statusIcon, i.age)
	if i.runs > 1 {
		desc += fmt.Sprintf(" | %d runs", i.runs)
	}
	return desc + " | " + truncate(i.entry.Session, 12)
}

func (i entryItem) FilterValue() string {
	return i.entry.Command
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatAge renders d with its two largest units, except below an hour.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the history picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a history picker. entries are oldest first, as the
// store returns them. The newest is listed first and a command line run
// several times is listed once, at its latest run.
func NewPicker(entries []history.Entry, now time.Time) Model {
	var items []list.Item
	seen := make(map[string]int)
	for i := len(entries) - 1; i >= 0; i-- {
		e := &entries[i]
		if idx, ok := seen[e.Command]; ok {
			item := items[idx].(entryItem)
			item.runs++
			items[idx] = item
			continue
		}
		seen[e.Command] = len(items)
		items = append(items, entryItem{
			entry: e,
			age:   formatAge(now.Sub(e.CreatedAt)),
			runs:  1,
		})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 80, 20)
	l.Title = "shellcore - History"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Keys belong to the filter input while it is open.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			return m.choose(ActionRun)
		case "p":
			return m.choose(ActionPrint)
		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Run  [p] Print  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// choose ends the picker with action applied to the selected line. With
// nothing selected, as when the filter matches nothing, the key is ignored.
func (m Model) choose(action Action) (tea.Model, tea.Cmd) {
	item, ok := m.list.SelectedItem().(entryItem)
	if !ok {
		return m, nil
	}
	m.result = PickerResult{Action: action, Entry: item.entry}
	m.quitting = true
	return m, tea.Quit
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive history picker
func RunPicker(entries []history.Entry) (PickerResult, error) {
	if len(entries) == 0 {
		return PickerResult{Action: ActionNone}, nil
	}

	m := NewPicker(entries, time.Now())
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimpleList lists every run, oldest first, one per line: id, a ✗ for a
// failed run, time and command line.
func SimpleList(entries []history.Entry) string {
	if len(entries) == 0 {
		return "No history recorded.\n"
	}
	var sb strings.Builder
	for _, e := range entries {
		mark := " "
		if e.ExitCode != 0 {
			mark = "✗"
		}
		fmt.Fprintf(&sb, "%5d %s %s  %s\n", e.ID, mark, e.CreatedAt.Format("2006-01-02 15:04"), e.Command)
	}
	return sb.String()
}
