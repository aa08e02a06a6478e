package logging

import (
	"fmt"
	"io"
	"os"
)

// Notices are one-line messages for the person at the terminal, such as
// "History is disabled". They go to stderr so that stdout carries nothing
// but command output.
var noticeOut io.Writer = os.Stderr

// SetNoticeOutput redirects notices. A nil w restores stderr.
func SetNoticeOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	noticeOut = w
}

// Noticef prints an informational notice.
func Noticef(format string, args ...any) {
	fmt.Fprintf(noticeOut, "ℹ "+format+"\n", args...)
}

// Warningf prints a notice about something the user should fix, like an
// rc file that cannot be watched.
func Warningf(format string, args ...any) {
	fmt.Fprintf(noticeOut, "⚠ "+format+"\n", args...)
}
