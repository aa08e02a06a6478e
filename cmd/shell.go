package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/firefly-engineering/shellcore/internal/app"
	"github.com/firefly-engineering/shellcore/internal/config"
	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
	"github.com/firefly-engineering/shellcore/internal/logging"
	"github.com/firefly-engineering/shellcore/internal/parser"
	"github.com/firefly-engineering/shellcore/internal/prompt"
	"github.com/firefly-engineering/shellcore/internal/shell"
	"github.com/firefly-engineering/shellcore/internal/stream"
	"github.com/firefly-engineering/shellcore/internal/terminal"
)

// streamBuffer is the number of messages queued in each direction.
const streamBuffer = 64

func runShell(cmd *cobra.Command, args []string) error {
	a := app.Default
	defer func() {
		if err := a.Close(); err != nil {
			logging.Warn("failed to close history", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr := a.Config.MetricsAddr; addr != "" {
		srv := a.MetricsServer(addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Warn("metrics server stopped", "addr", addr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logging.Debug("metrics server started", "addr", addr)
	}

	// $0 is the script, or the first argument after -c.
	var opts []shell.Option
	if len(args) > 0 {
		opts = append(opts, shell.WithName(args[0]))
	}
	s, closeSession, err := openSession(cmd, a, opts...)
	if err != nil {
		return err
	}
	defer closeSession()
	core := s.core

	if a.Config.Watch && a.Config.Path != "" {
		stop := watchConfig(ctx, a.Config.Path, core)
		defer stop()
	}

	if rc := a.Config.RC; rc != "" {
		if _, err := s.source(ctx, rc); err != nil {
			return err
		}
	}

	if len(args) > 0 {
		setPositional(core, args[1:])
	}

	var rc uint8
	switch {
	case command != "":
		rc, err = s.readline(ctx, command)
		err = incomplete(err)
	case len(args) > 0:
		rc, err = s.source(ctx, args[0])
	default:
		if interactive(cmd) {
			rc = s.repl(ctx)
		} else {
			s.forwardInput = false
			rc, err = s.script(ctx)
		}
	}
	return exitStatus(core, rc, err)
}

// exitStatus turns the outcome of the last command into the error
// returned by the command: nil for 0, a silent ShellError otherwise.
func exitStatus(core *shell.Core, rc uint8, err error) error {
	terminated := core.State() == shell.Terminated
	if err != nil && !terminated {
		return err
	}
	if terminated {
		rc = core.ExitCode()
	}
	if rc != 0 {
		return shellerrors.New(int(rc), "")
	}
	return nil
}

// openSession creates a core wired to a and a session hosting it on the
// command's stdin and outputs.
func openSession(cmd *cobra.Command, a *app.App, opts ...shell.Option) (*session, func(), error) {
	shellEnd, userEnd := stream.New(streamBuffer)
	core, err := a.NewCore(shellEnd, opts...)
	if err != nil {
		userEnd.Close()
		return nil, nil, err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT)

	userName, host := prompt.Current()
	s := &session{
		core:         core,
		user:         userEnd,
		out:          cmd.OutOrStdout(),
		errOut:       cmd.ErrOrStderr(),
		lines:        readLines(cmd.InOrStdin()),
		sigs:         sigs,
		forwardInput: true,
		renderer:     prompt.New(terminal.ColorEnabled(os.Stderr)),
		userName:     userName,
		host:         host,
	}
	return s, func() {
		signal.Stop(sigs)
		shellEnd.Close()
		userEnd.Close()
	}, nil
}

// script runs the lines of a non-interactive stdin without prompting.
func (s *session) script(ctx context.Context) (uint8, error) {
	var pending string
	for line := range s.lines {
		src := pending + line
		rc, err := s.readline(ctx, src)
		switch {
		case err == nil:
			pending = ""
		case parser.NeedsMore(err):
			pending = src
		default:
			return rc, err
		}
		if s.core.State() == shell.Terminated {
			break
		}
	}
	if pending != "" {
		rc, err := s.readline(ctx, pending)
		return rc, incomplete(err)
	}
	return s.core.ExitCode(), nil
}

// incomplete turns the error of a line that needs more input into a
// usage error.
func incomplete(err error) error {
	if parser.NeedsMore(err) {
		return shellerrors.ParseError("unexpected end of input", err)
	}
	return err
}

// setPositional sets $1, $2, ... from args.
func setPositional(core *shell.Core, args []string) {
	for i, arg := range args {
		core.StorageSet(strconv.Itoa(i+1), arg)
	}
}

// watchConfig reloads the core whenever the rc file changes.
func watchConfig(ctx context.Context, path string, core *shell.Core) func() {
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		logging.SetVerbose(verbose || cfg.Verbose)
		if err := core.Reload(cfg); err != nil {
			logging.Warn("failed to apply reloaded config", "path", path, "error", err)
			return
		}
		logging.Debug("config reloaded", "path", path)
	})
	if err != nil {
		logWarning("Config watch disabled: %v", err)
		return func() {}
	}
	if err := w.Start(ctx); err != nil {
		logWarning("Config watch disabled: %v", err)
		return func() {}
	}
	return func() { _ = w.Stop() }
}

// interactive reports whether the command reads a terminal.
func interactive(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && terminal.IsTerminal(f)
}
