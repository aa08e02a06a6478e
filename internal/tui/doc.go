// Package tui holds the Bubble Tea history picker behind
// `shellcore history --pick`.
//
// The picker shows each distinct command line once, newest first, with its
// exit status, age and run count. Enter runs the line in a new session, p
// prints it, / filters and q or Esc leave:
//
//	result, err := tui.RunPicker(entries)
//	if err == nil && result.Action == tui.ActionRun {
//	    runLine(result.Entry.Command)
//	}
//
// SimpleList is the plain text listing used when --pick is not given. It
// keeps every run.
package tui
