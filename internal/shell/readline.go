package shell

import (
	"context"
	"strings"
	"time"

	"github.com/firefly-engineering/shellcore/internal/audit"
	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
	"github.com/firefly-engineering/shellcore/internal/expr"
	"github.com/firefly-engineering/shellcore/internal/parser"
)

// Readline parses and runs one command line and returns its exit code.
//
// The returned error is non-nil only when nothing ran: the line is
// incomplete (parser.NeedsMore reports true and the caller should append
// the next line), another line is still running, or the session is
// terminated. Parse and runtime errors are reported on the stream.
func (c *Core) Readline(ctx context.Context, line string) (uint8, error) {
	if !c.state.CompareAndSwap(int32(Idle), int32(Running)) {
		if c.State() == Terminated {
			return c.ExitCode(), shellerrors.Terminated()
		}
		return c.ExitCode(), shellerrors.AlreadyRunning()
	}
	started := time.Now()
	defer func() {
		c.recorder.ObserveReadlineDuration(time.Since(started))
	}()

	e, err := c.parser.Parse(line)
	if err != nil && parser.NeedsMore(err) {
		c.state.Store(int32(Idle))
		return c.ExitCode(), err
	}
	if !isHistoryReference(e) {
		c.recordHistory(line)
	}

	var rc uint8
	var terminated bool
	if err != nil {
		c.recorder.IncParseError()
		c.send(streamError(err))
		rc = shellerrors.ExitUsage
		c.setExitCode(rc)
	} else if e.Len() == 0 {
		rc = c.ExitCode()
	} else {
		r := c.newRunner(ctx)
		rc = r.runExpression(e)
		terminated = r.flow == flowExit
		if terminated {
			rc = r.exitCode
		}
		c.setExitCode(rc)
	}

	c.recordExitCode(rc)
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		code := int(rc)
		c.auditEvent(audit.Event{Type: audit.EventCommand, Command: trimmed, ExitCode: &code, Duration: time.Since(started)})
	}

	if terminated {
		c.Exit(rc)
	} else {
		c.state.Store(int32(Idle))
	}
	return rc, nil
}

func isHistoryReference(e *expr.Expression) bool {
	if e.Len() != 1 {
		return false
	}
	_, ok := e.Statements[0].(expr.ExecHistory)
	return ok
}

// Source runs every command of a file, as the source builtin does.
func (c *Core) Source(ctx context.Context, path string) (uint8, error) {
	if !c.state.CompareAndSwap(int32(Idle), int32(Running)) {
		if c.State() == Terminated {
			return c.ExitCode(), shellerrors.Terminated()
		}
		return c.ExitCode(), shellerrors.AlreadyRunning()
	}

	r := c.newRunner(ctx)
	rc := r.source(path)
	if r.flow == flowExit {
		rc = r.exitCode
		c.Exit(rc)
		return rc, nil
	}
	c.setExitCode(rc)
	c.state.Store(int32(Idle))
	return rc, nil
}
