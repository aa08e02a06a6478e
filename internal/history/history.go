// Package history records the command lines typed in a session.
package history

import (
	"strings"
	"sync"
)

// DefaultSize is the number of entries kept when no size is configured.
const DefaultSize = 1024

// History is a bounded list of command lines, oldest first.
type History struct {
	mu      sync.Mutex
	entries []string
	size    int
}

// New creates a history holding at most size entries.
func New(size int) *History {
	if size <= 0 {
		size = DefaultSize
	}
	return &History{size: size}
}

// Push records line. Blank lines and repeats of the last entry are not
// recorded; Push reports whether line was added.
func (h *History) Push(line string) bool {
	line = strings.TrimRight(line, "\n")
	if strings.TrimSpace(line) == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.entries); n > 0 && h.entries[n-1] == line {
		return false
	}
	h.entries = append(h.entries, line)
	if over := len(h.entries) - h.size; over > 0 {
		h.entries = append([]string(nil), h.entries[over:]...)
	}
	return true
}

// At returns the entry at index. Indexes start at 1 for the oldest entry;
// negative indexes count back from the newest (-1 is the last line).
func (h *History) At(index int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.entries)
	switch {
	case index > 0 && index <= n:
		return h.entries[index-1], true
	case index < 0 && -index <= n:
		return h.entries[n+index], true
	default:
		return "", false
	}
}

// Entries returns a copy of every entry, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Size returns the maximum number of entries.
func (h *History) Size() int {
	return h.size
}

// Clear removes every entry.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Load replaces the entries with lines, applying the same rules as Push.
func (h *History) Load(lines []string) {
	h.Clear()
	for _, line := range lines {
		h.Push(line)
	}
}
