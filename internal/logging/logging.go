package logging

import (
	"io"
	"log/slog"
	"os"
)

var (
	// Logger is the process-wide structured logger.
	Logger *slog.Logger

	level = new(slog.LevelVar)
)

func init() {
	level.Set(slog.LevelWarn)
	Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Setup replaces Logger. Debug records are kept only when verbose is set;
// jsonOutput switches the handler to one JSON object per line. A nil w
// logs to stderr.
func Setup(verbose, jsonOutput bool, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	SetVerbose(verbose)

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if jsonOutput {
		h = slog.NewJSONHandler(w, opts)
	}
	Logger = slog.New(h)
}

// SetVerbose changes the level of Logger and of every logger derived from
// it, including session loggers created earlier.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelWarn)
}

func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger.Warn(msg, args...) }
func Error(msg string, args ...any) { Logger.Error(msg, args...) }

// ForSession returns the logger of one shell core. Every record carries
// the session id so interleaved sessions can be told apart.
func ForSession(id string) *slog.Logger {
	return Logger.With("session", id)
}
