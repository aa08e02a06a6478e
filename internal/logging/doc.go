// Package logging holds the structured logger of shellcore and the notices
// printed to the user.
//
// Structured records go through slog. Without -v only warnings and errors
// are kept; --json switches to JSON lines:
//
//	logging.Debug("task started", "argv", argv, "pid", pid)
//	logging.Warn("history store unavailable", "path", path, "error", err)
//
// A core logs through its session logger:
//
//	log := logging.ForSession(id)
//
// Notices are plain text with a status marker and always go to stderr:
//
//	logging.Noticef("No sessions recorded")
//	logging.Warningf("Config watch disabled: %v", err)
package logging
