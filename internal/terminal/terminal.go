// Package terminal provides host terminal detection helpers.
package terminal

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ColorEnabled reports whether styled output should be written to f.
// NO_COLOR disables color, CLICOLOR_FORCE enables it even without a
// terminal, and TERM=dumb disables it.
func ColorEnabled(f *os.File) bool {
	return colorEnabled(os.Getenv, IsTerminal(f))
}

func colorEnabled(getenv func(string) string, tty bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if force := getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	if getenv("TERM") == "dumb" {
		return false
	}
	return tty
}
