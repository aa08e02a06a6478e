package shell

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
	"github.com/firefly-engineering/shellcore/internal/expr"
	"github.com/firefly-engineering/shellcore/internal/parser"
	"github.com/firefly-engineering/shellcore/internal/stream"
)

// flow tells the enclosing statements how to continue.
type flow int

const (
	flowNext flow = iota
	flowBreak
	flowContinue
	flowReturn
	flowInterrupt
	flowExit
)

const maxSourceDepth = 32

// capture collects output that must not reach the stream directly: a
// builtin whose output is piped or redirected, or a command substitution.
type capture struct {
	stdout strings.Builder
	stderr strings.Builder
	errs   []error
}

// runner executes the expressions of one Readline call.
type runner struct {
	core *Core
	ctx  context.Context

	flow     flow
	exitCode uint8

	sink     *capture
	stdin    *string
	loops    int
	calls    int
	sourcing int

	// Status of the last command substitution, -1 when none ran.
	substitution int
}

func (c *Core) newRunner(ctx context.Context) *runner {
	return &runner{core: c, ctx: ctx, substitution: -1}
}

func streamError(err error) stream.ShellMessage {
	return stream.Error{Err: err}
}

// write emits output to the current capture or to the stream.
func (r *runner) write(stdout, stderr string) {
	if stdout == "" && stderr == "" {
		return
	}
	if r.sink != nil {
		r.sink.stdout.WriteString(stdout)
		r.sink.stderr.WriteString(stderr)
		return
	}
	r.core.send(stream.Output{Stdout: stdout, Stderr: stderr})
}

// report sends a structured message, or its text rendering when captured.
func (r *runner) report(msg stream.ShellMessage, text string) {
	if r.sink != nil {
		r.sink.stdout.WriteString(text)
		return
	}
	r.core.send(msg)
}

// fail reports err and returns the exit code it carries.
func (r *runner) fail(err error) uint8 {
	r.core.log.Debug("command failed", "error", err)
	if r.sink != nil {
		r.sink.errs = append(r.sink.errs, err)
	} else {
		r.core.send(streamError(err))
	}
	var se *shellerrors.ShellError
	if shellerrors.As(err, &se) {
		return uint8(se.Code)
	}
	var pe *parser.ParserError
	if shellerrors.As(err, &pe) {
		return shellerrors.ExitUsage
	}
	return shellerrors.ExitGeneralError
}

// captured runs fn with its output collected instead of emitted.
func (r *runner) captured(fn func() uint8) (*capture, uint8) {
	saved := r.sink
	r.sink = &capture{}
	defer func() { r.sink = saved }()
	rc := fn()
	return r.sink, rc
}

// forward re-emits the stderr and errors of a capture whose stdout was
// consumed.
func (r *runner) forward(c *capture) {
	r.write("", c.stderr.String())
	for _, err := range c.errs {
		r.fail(err)
	}
}

// runExpression runs statements until one changes the flow.
func (r *runner) runExpression(e *expr.Expression) uint8 {
	var rc uint8
	if e == nil {
		return rc
	}
	for _, s := range e.Statements {
		rc = r.runStatement(s)
		r.core.setExitCode(rc)
		if r.flow != flowNext {
			break
		}
		r.pollInterrupt()
		if r.flow == flowNext && r.ctx.Err() != nil {
			r.flow = flowInterrupt
		}
		if r.flow == flowInterrupt {
			rc = shellerrors.ExitInterrupted
			r.core.setExitCode(rc)
			break
		}
	}
	return rc
}

// pollInterrupt looks for an interrupt between statements, so that loops
// made only of builtins and functions stop too. Input received meanwhile
// is kept for the next process or read.
func (r *runner) pollInterrupt() {
	c := r.core
	if c.stream == nil {
		return
	}
	msgs, _ := c.stream.Receive()
	for _, msg := range msgs {
		switch msg.(type) {
		case stream.Interrupt:
			r.flow = flowInterrupt
		case stream.EndOfInput:
			c.inputClosed.Store(true)
		case stream.Input:
			c.backlog = append(c.backlog, msg)
		default:
			c.log.Debug("no process to deliver to", "message", fmt.Sprintf("%T", msg))
		}
	}
}

// userMessages returns the kept back input followed by the pending user
// messages.
func (r *runner) userMessages() ([]stream.UserMessage, error) {
	c := r.core
	msgs, err := c.stream.Receive()
	if len(c.backlog) > 0 {
		msgs = append(c.backlog, msgs...)
		c.backlog = nil
	}
	return msgs, err
}

func (r *runner) runStatement(s expr.Statement) uint8 {
	c := r.core
	switch s := s.(type) {
	case expr.Alias:
		return r.alias(s)

	case expr.Unalias:
		if !c.AliasUnset(s.Name) {
			return r.fail(shellerrors.New(shellerrors.ExitGeneralError, fmt.Sprintf("unalias: %s: not found", s.Name)))
		}
		return 0

	case expr.Break:
		if r.loops > 0 {
			r.flow = flowBreak
		}
		return 0

	case expr.Continue:
		if r.loops > 0 {
			r.flow = flowContinue
		}
		return 0

	case expr.Cd:
		path, err := r.expandOne(s.Path)
		if err != nil {
			return r.fail(err)
		}
		if err := c.ChangeDirectory(path); err != nil {
			return r.fail(err)
		}
		return 0

	case expr.Dirs:
		r.dirs()
		return 0

	case expr.Pushd:
		path, err := r.expandOne(s.Path)
		if err != nil {
			return r.fail(err)
		}
		if err := c.Pushd(path); err != nil {
			return r.fail(err)
		}
		r.dirs()
		return 0

	case expr.PopdFront:
		if err := c.PopdFront(); err != nil {
			return r.fail(err)
		}
		r.dirs()
		return 0

	case expr.PopdBack:
		if err := c.PopdBack(); err != nil {
			return r.fail(err)
		}
		r.dirs()
		return 0

	case expr.Exec:
		return r.runChain(s.Task)

	case expr.ExecHistory:
		return r.execHistory(s.Index)

	case expr.Exit:
		return r.exit(s.Code)

	case expr.Return:
		return r.ret(s.Code)

	case expr.Export:
		value, rc := r.value(s.Value)
		if r.flow == flowNext {
			c.EnvironSet(s.Key, value)
		}
		return rc

	case expr.Set:
		value, rc := r.value(s.Value)
		if r.flow == flowNext {
			c.StorageSet(s.Key, value)
		}
		return rc

	case expr.Unset:
		c.ValueUnset(s.Key)
		return 0

	case expr.Function:
		c.FunctionSet(s.Name, s.Body)
		return 0

	case expr.For:
		return r.forEach(s)

	case expr.While:
		return r.while(s)

	case expr.If:
		rc := r.runExpression(s.Condition)
		if r.flow != flowNext {
			return rc
		}
		if rc == 0 {
			return r.runExpression(s.Then)
		}
		return r.runExpression(s.Else)

	case expr.History:
		entries := c.History()
		var sb strings.Builder
		for i, line := range entries {
			fmt.Fprintf(&sb, "%5d  %s\n", i+1, line)
		}
		r.report(stream.History{Entries: entries}, sb.String())
		return 0

	case expr.Read:
		return r.read(s)

	case expr.Replace:
		return r.replace(s.Argv)

	case expr.Source:
		path, err := r.expandOne(s.Path)
		if err != nil {
			return r.fail(err)
		}
		return r.source(path)

	case expr.Time:
		started := time.Now()
		rc := r.runExpression(s.Body)
		elapsed := time.Since(started)
		if r.sink != nil {
			r.sink.stderr.WriteString(fmt.Sprintf("\nreal\t%.3fs\n", elapsed.Seconds()))
		} else {
			c.send(stream.Timing{Duration: elapsed})
		}
		return rc

	case expr.Type:
		return r.typeOf(s.Names)

	case expr.Value:
		fields, err := r.expandWords(s.Words)
		if err != nil {
			return r.fail(err)
		}
		r.write(strings.Join(fields, " ")+"\n", "")
		return 0

	default:
		return r.fail(shellerrors.New(shellerrors.ExitGeneralError, fmt.Sprintf("unsupported statement %T", s)))
	}
}

func (r *runner) dirs() {
	dirs := r.core.Dirs()
	r.report(stream.Dirs{Dirs: dirs}, strings.Join(dirs, " ")+"\n")
}

func (r *runner) alias(s expr.Alias) uint8 {
	c := r.core
	switch {
	case s.Name == "":
		aliases := c.Aliases()
		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		var sb strings.Builder
		for _, name := range names {
			fmt.Fprintf(&sb, "alias %s=%s\n", name, quoteAlias(aliases[name]))
		}
		r.report(stream.Aliases{Aliases: aliases}, sb.String())
		return 0
	case s.Command == "":
		command, ok := c.AliasGet(s.Name)
		if !ok {
			return r.fail(shellerrors.New(shellerrors.ExitGeneralError, fmt.Sprintf("alias: %s: not found", s.Name)))
		}
		r.write(fmt.Sprintf("alias %s=%s\n", s.Name, quoteAlias(command)), "")
		return 0
	default:
		command, err := r.expandOne(s.Command)
		if err != nil {
			return r.fail(err)
		}
		if err := c.AliasSet(s.Name, command); err != nil {
			return r.fail(err)
		}
		return 0
	}
}

func quoteAlias(command string) string {
	return "'" + strings.ReplaceAll(command, "'", `'\''`) + "'"
}

// value computes the value of an assignment. A plain word list is expanded
// without field splitting or globbing and the status is the one of its last
// command substitution; anything else runs and its output, without trailing
// newlines, is the value.
func (r *runner) value(e *expr.Expression) (string, uint8) {
	if e.Len() == 1 {
		if v, ok := e.Statements[0].(expr.Value); ok {
			r.substitution = -1
			parts := make([]string, 0, len(v.Words))
			for _, word := range v.Words {
				part, err := r.expandOne(word)
				if err != nil {
					return "", r.fail(err)
				}
				parts = append(parts, part)
			}
			var rc uint8
			if r.substitution >= 0 {
				rc = uint8(r.substitution)
			}
			return strings.Join(parts, " "), rc
		}
	}
	out, rc := r.captured(func() uint8 { return r.runExpression(e) })
	r.forward(out)
	return strings.TrimRight(out.stdout.String(), "\n"), rc
}

func (r *runner) exit(code string) uint8 {
	rc := r.core.ExitCode()
	if code != "" {
		expanded, err := r.expandOne(code)
		if err != nil {
			return r.fail(err)
		}
		n, err := strconv.Atoi(expanded)
		if err != nil {
			rc = r.fail(shellerrors.BadValue(fmt.Sprintf("exit: %s: numeric argument required", expanded)))
		} else {
			rc = uint8(n)
		}
	}
	r.flow = flowExit
	r.exitCode = rc
	return rc
}

func (r *runner) ret(code string) uint8 {
	if r.calls == 0 && r.sourcing == 0 {
		return r.fail(shellerrors.New(shellerrors.ExitGeneralError, "return: can only be used in a function or sourced script"))
	}
	rc := r.core.ExitCode()
	if code != "" {
		expanded, err := r.expandOne(code)
		if err != nil {
			return r.fail(err)
		}
		n, err := strconv.Atoi(expanded)
		if err != nil {
			return r.fail(shellerrors.BadValue(fmt.Sprintf("return: %s: numeric argument required", expanded)))
		}
		rc = uint8(n)
	}
	r.flow = flowReturn
	return rc
}

// loop applies the flow left by a loop body and reports whether the loop
// ends.
func (r *runner) loop() bool {
	switch r.flow {
	case flowBreak:
		r.flow = flowNext
		return true
	case flowContinue:
		r.flow = flowNext
		return false
	case flowNext:
		return false
	default:
		return true
	}
}

func (r *runner) forEach(s expr.For) uint8 {
	out, rc := r.captured(func() uint8 { return r.runExpression(s.Condition) })
	r.forward(out)
	if r.flow != flowNext {
		return rc
	}

	rc = 0
	r.loops++
	defer func() { r.loops-- }()
	for _, item := range strings.Fields(out.stdout.String()) {
		r.core.StorageSet(s.Key, item)
		rc = r.runExpression(s.Body)
		if r.loop() {
			break
		}
	}
	r.core.storageUnset(s.Key)
	return rc
}

func (r *runner) while(s expr.While) uint8 {
	var rc uint8
	r.loops++
	defer func() { r.loops-- }()
	for {
		cond := r.runExpression(s.Condition)
		if r.flow != flowNext {
			if r.loop() {
				return cond
			}
			continue
		}
		if cond != 0 {
			return rc
		}
		rc = r.runExpression(s.Body)
		if r.loop() {
			return rc
		}
	}
}

func (r *runner) execHistory(index int) uint8 {
	line, err := r.core.HistoryAt(index)
	if err != nil {
		return r.fail(err)
	}
	e, err := r.core.parser.Parse(line)
	if err != nil {
		return r.fail(shellerrors.ParseError(line, err))
	}
	r.core.recordHistory(line)
	return r.runExpression(e)
}

// read waits for one line of input, from a pipe when the statement is
// piped into, otherwise from the user.
func (r *runner) read(s expr.Read) uint8 {
	prompt, err := r.expandOne(s.Prompt)
	if err != nil {
		return r.fail(err)
	}

	var text string
	var rc uint8
	if r.stdin != nil {
		line, rest, found := strings.Cut(*r.stdin, "\n")
		*r.stdin = rest
		text = line
		if !found && line == "" {
			rc = 1
		}
	} else {
		if prompt != "" {
			r.core.send(stream.Output{Stdout: prompt})
		}
		c := r.core
		var msg stream.UserMessage
		err := stream.ErrClosed
		switch {
		case len(c.backlog) > 0:
			msg, err = c.backlog[0], nil
			c.backlog = c.backlog[1:]
		case c.inputClosed.Load():
			msg, err = stream.EndOfInput{}, nil
		case c.stream != nil:
			msg, err = c.stream.Wait(r.ctx)
		}
		switch msg := msg.(type) {
		case stream.Input:
			text = msg.Text
		case stream.EndOfInput:
			c.inputClosed.Store(true)
			rc = 1
		case stream.Kill, stream.Signal:
			rc = 1
		case stream.Interrupt:
			r.flow = flowInterrupt
			rc = shellerrors.ExitInterrupted
		default:
			c.log.Debug("read aborted", "error", err)
			if shellerrors.Is(err, stream.ErrClosed) {
				r.flow = flowExit
				r.exitCode = shellerrors.ExitAborted
				rc = shellerrors.ExitAborted
			} else {
				r.flow = flowInterrupt
				rc = shellerrors.ExitInterrupted
			}
		}
	}

	text = strings.TrimSuffix(strings.TrimSuffix(text, "\n"), "\r")
	if s.MaxSize > 0 && utf8.RuneCountInString(text) > s.MaxSize {
		text = string([]rune(text)[:s.MaxSize])
	}
	r.core.StorageSet(s.Key, text)
	return rc
}

func (r *runner) replace(argv []string) uint8 {
	fields, err := r.expandWords(argv)
	if err != nil {
		return r.fail(err)
	}
	if len(fields) == 0 {
		return 0
	}
	err = r.core.executor.ReplaceProcess(fields, r.core.Environ())
	r.core.log.Debug("exec failed", "argv", fields, "error", err)
	if shellerrors.Is(err, errNotFound) {
		return r.fail(shellerrors.CommandNotFound(fields[0]))
	}
	return r.fail(shellerrors.Wrap(shellerrors.ExitNotExecutable, "exec: "+fields[0], err))
}

func (r *runner) typeOf(names []string) uint8 {
	c := r.core
	var rc uint8
	for _, raw := range names {
		name, err := r.expandOne(raw)
		if err != nil {
			rc = r.fail(err)
			continue
		}
		if command, ok := c.AliasGet(name); ok {
			r.write(fmt.Sprintf("%s is aliased to `%s'\n", name, command), "")
			continue
		}
		if _, ok := c.FunctionGet(name); ok {
			r.write(fmt.Sprintf("%s is a function\n", name), "")
			continue
		}
		if parser.IsBuiltin(name) {
			r.write(fmt.Sprintf("%s is a shell builtin\n", name), "")
			continue
		}
		if path, err := r.lookPath(name); err == nil {
			r.write(fmt.Sprintf("%s is %s\n", name, path), "")
			continue
		}
		rc = r.fail(shellerrors.New(shellerrors.ExitGeneralError, fmt.Sprintf("type: %s: not found", name)))
	}
	return rc
}

func (r *runner) lookPath(name string) (string, error) {
	path, _ := r.core.ValueGet("PATH")
	if strings.Contains(name, "/") {
		resolved, err := r.core.resolvePath(name)
		if err != nil {
			return "", err
		}
		name = resolved
	}
	return r.core.executor.LookPath(name, path)
}

// source runs the commands of a file. Lines are joined until they form a
// complete command.
func (r *runner) source(path string) uint8 {
	if r.sourcing >= maxSourceDepth {
		return r.fail(shellerrors.New(shellerrors.ExitGeneralError, "source: maximum nesting depth exceeded"))
	}
	resolved, err := r.core.resolvePath(path)
	if err != nil {
		return r.fail(err)
	}
	data, err := r.core.fs.ReadFile(resolved)
	if err != nil {
		if isNotExist(err) {
			return r.fail(shellerrors.NoSuchFileOrDirectory(path))
		}
		return r.fail(shellerrors.IOError("source "+path, err))
	}

	r.sourcing++
	defer func() { r.sourcing-- }()

	var rc uint8
	var pending strings.Builder
	start := 0
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if pending.Len() == 0 {
			start = i + 1
		} else {
			pending.WriteString("\n")
		}
		pending.WriteString(line)

		e, err := r.core.parser.Parse(pending.String())
		if err != nil {
			if parser.NeedsMore(err) && i < len(lines)-1 {
				continue
			}
			rc = r.fail(shellerrors.ParseError(fmt.Sprintf("%s:%d", path, start), err))
			pending.Reset()
			continue
		}
		pending.Reset()
		// Blank and comment lines keep the status of the last command.
		if e.Len() == 0 {
			continue
		}

		rc = r.runExpression(e)
		r.core.setExitCode(rc)
		if r.flow == flowReturn {
			r.flow = flowNext
			break
		}
		if r.flow != flowNext {
			break
		}
	}
	return rc
}
