package shell

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
	"github.com/firefly-engineering/shellcore/internal/expr"
	"github.com/firefly-engineering/shellcore/internal/metrics"
	"github.com/firefly-engineering/shellcore/internal/parser"
	"github.com/firefly-engineering/shellcore/internal/stream"
	"github.com/firefly-engineering/shellcore/internal/task"
)

var errNotFound = exec.ErrNotFound

const maxAliasDepth = 16

func isNotExist(err error) bool {
	return shellerrors.Is(err, fs.ErrNotExist)
}

type commandKind int

const (
	kindProcess commandKind = iota
	kindBuiltin
	kindFunction
)

// command is a task resolved for execution.
type command struct {
	task   *task.Task
	kind   commandKind
	argv   []string
	body   *expr.Expression
	stdout task.Redirection
	stderr task.Redirection
}

// resolve substitutes aliases, classifies the command and expands what the
// command kind needs expanded. Builtin arguments stay raw: their statements
// expand them when they run.
func (r *runner) resolve(t *task.Task) (*command, error) {
	c := r.core
	words := append([]string(nil), t.Command...)
	seen := map[string]bool{}
	for len(words) > 0 && len(seen) < maxAliasDepth {
		name := words[0]
		if seen[name] || strings.ContainsAny(name, `'"\$`) {
			break
		}
		alias, ok := c.AliasGet(name)
		if !ok {
			break
		}
		seen[name] = true
		aliasWords, err := parser.Words(alias)
		if err != nil {
			return nil, shellerrors.BadValue(fmt.Sprintf("alias %s: %v", name, err))
		}
		words = append(aliasWords, words[1:]...)
	}

	cmd := &command{task: t}
	var err error
	if cmd.stdout, err = r.redirection(t.Stdout); err != nil {
		return nil, err
	}
	if cmd.stderr, err = r.redirection(t.Stderr); err != nil {
		return nil, err
	}

	// Skip words expanding to nothing, as in `$EMPTY ls`.
	var head []string
	for len(words) > 0 && len(head) == 0 {
		head, err = r.expandWords(words[:1])
		if err != nil {
			return nil, err
		}
		words = words[1:]
	}
	if len(head) == 0 {
		cmd.kind = kindBuiltin
		cmd.body = expr.New()
		return cmd, nil
	}
	name := head[0]

	if body, ok := c.FunctionGet(name); ok {
		rest, err := r.expandWords(words)
		if err != nil {
			return nil, err
		}
		cmd.kind = kindFunction
		cmd.body = body
		cmd.argv = append(head, rest...)
		return cmd, nil
	}

	if len(head) == 1 {
		e, ok, err := parser.ParseBuiltin(append([]string{name}, words...))
		if ok {
			if err != nil {
				return nil, err
			}
			cmd.kind = kindBuiltin
			cmd.body = e
			cmd.argv = []string{name}
			return cmd, nil
		}
	}

	rest, err := r.expandWords(words)
	if err != nil {
		return nil, err
	}
	cmd.kind = kindProcess
	cmd.argv = append(head, rest...)
	return cmd, nil
}

func (r *runner) redirection(red task.Redirection) (task.Redirection, error) {
	if red.Kind != task.RedirectFile {
		return red, nil
	}
	fields, err := r.expandWords([]string{red.Path})
	if err != nil {
		return red, err
	}
	if len(fields) != 1 {
		return red, shellerrors.BadValue(fmt.Sprintf("%s: ambiguous redirect", red.Path))
	}
	path, err := r.core.resolvePath(fields[0])
	if err != nil {
		return red, err
	}
	return task.ToFile(path, red.Mode), nil
}

// runChain runs a task chain. Consecutive processes linked by pipes run as
// one group under a task.Manager; builtins and functions run here with their
// output captured when it is piped or redirected.
func (r *runner) runChain(head *task.Task) uint8 {
	var rc uint8
	relation := task.Unrelated
	var input *string
	resolved := map[*task.Task]*command{}

	resolveOnce := func(t *task.Task) (*command, error) {
		if cmd, ok := resolved[t]; ok {
			return cmd, nil
		}
		cmd, err := r.resolve(t)
		if err == nil {
			resolved[t] = cmd
		}
		return cmd, err
	}

	for cur := head; cur != nil && r.flow == flowNext; {
		if !relation.Satisfied(rc) {
			for cur.Relation == task.Pipe && cur.Next != nil {
				cur = cur.Next
			}
			relation = cur.Relation
			cur = cur.Next
			input = nil
			continue
		}

		cmd, err := resolveOnce(cur)
		if err != nil {
			rc = r.fail(err)
			r.core.setExitCode(rc)
			relation = cur.Relation
			cur = cur.Next
			input = nil
			continue
		}

		if cmd.kind != kindProcess {
			var out *string
			rc, out = r.runInline(cmd, input)
			r.core.setExitCode(rc)
			input = out
			relation = cur.Relation
			cur = cur.Next
			continue
		}

		group := []*command{cmd}
		last := cur
		for last.Relation == task.Pipe && last.Next != nil {
			next, err := resolveOnce(last.Next)
			if err != nil || next.kind != kindProcess {
				break
			}
			group = append(group, next)
			last = last.Next
		}
		var out *string
		rc, out = r.runProcesses(group, input, last.Relation == task.Pipe)
		r.core.setExitCode(rc)
		input = out
		relation = last.Relation
		cur = last.Next
	}
	return rc
}

// runInline runs a builtin or function. It returns the output destined to
// the next task when the command is piped.
func (r *runner) runInline(cmd *command, input *string) (uint8, *string) {
	kind := metrics.KindBuiltin
	if cmd.kind == kindFunction {
		kind = metrics.KindFunction
	}
	if len(cmd.argv) > 0 {
		r.core.recorder.IncCommand(kind)
	}

	run := func() uint8 {
		savedStdin := r.stdin
		r.stdin = input
		defer func() { r.stdin = savedStdin }()
		if cmd.kind == kindFunction {
			return r.call(cmd.argv, cmd.body)
		}
		return r.runExpression(cmd.body)
	}

	piped := cmd.task.Relation == task.Pipe
	direct := !piped && cmd.stdout.Kind == task.RedirectStdout && cmd.stderr.Kind == task.RedirectStderr
	if direct {
		return run(), nil
	}

	out, rc := r.captured(run)
	pipe, err := r.deliver(cmd, out, piped)
	if err != nil {
		return r.fail(err), pipe
	}
	return rc, pipe
}

// deliver routes captured output following the command's redirections.
func (r *runner) deliver(cmd *command, out *capture, piped bool) (*string, error) {
	var stdout, stderr, pipe strings.Builder
	type file struct {
		mode task.FileMode
		data strings.Builder
	}
	var order []string
	files := map[string]*file{}

	sendTo := func(red task.Redirection, toPipe bool, data string) {
		switch red.Kind {
		case task.RedirectFile:
			f, ok := files[red.Path]
			if !ok {
				f = &file{mode: red.Mode}
				files[red.Path] = f
				order = append(order, red.Path)
			}
			f.data.WriteString(data)
		case task.RedirectStderr:
			stderr.WriteString(data)
		default:
			if toPipe {
				pipe.WriteString(data)
			} else {
				stdout.WriteString(data)
			}
		}
	}

	sendTo(cmd.stdout, piped, out.stdout.String())
	errRed := cmd.stderr
	if errRed.Kind == task.RedirectStdout {
		errRed = cmd.stdout
		if errRed.Kind == task.RedirectStderr {
			errRed = task.ToStdout()
		}
	}
	sendTo(errRed, piped, out.stderr.String())
	if errRed.Kind == task.RedirectStderr {
		for _, err := range out.errs {
			r.fail(err)
		}
	} else {
		for _, err := range out.errs {
			sendTo(errRed, piped, fmt.Sprintf("%s: %v\n", r.core.name, err))
		}
	}

	r.write(stdout.String(), stderr.String())

	var result *string
	if piped {
		s := pipe.String()
		result = &s
	}

	for _, path := range order {
		f := files[path]
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if f.mode == task.Append {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		w, err := r.core.fs.OpenFile(path, flags, 0644)
		if err != nil {
			return result, shellerrors.IOError("open "+path, err)
		}
		_, err = w.Write([]byte(f.data.String()))
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return result, shellerrors.IOError("write "+path, err)
		}
	}
	return result, nil
}

// call runs a function with argv stored as the positional parameters
// 0..n. Parameters shadowed by the call are restored afterwards.
func (r *runner) call(argv []string, body *expr.Expression) uint8 {
	c := r.core
	type saved struct {
		value string
		ok    bool
	}
	previous := make([]saved, len(argv))
	for i, arg := range argv {
		key := strconv.Itoa(i)
		c.mu.RLock()
		v, ok := c.storage[key]
		c.mu.RUnlock()
		previous[i] = saved{value: v, ok: ok}
		c.StorageSet(key, arg)
	}
	defer func() {
		for i, p := range previous {
			key := strconv.Itoa(i)
			if p.ok {
				c.StorageSet(key, p.value)
			} else {
				c.storageUnset(key)
			}
		}
	}()

	r.calls++
	defer func() { r.calls-- }()
	rc := r.runExpression(body)
	if r.flow == flowReturn {
		r.flow = flowNext
	}
	return rc
}

// runProcesses runs a pipe group of processes. input, when set, is fed to
// the first process. When capture is set the stdout of the group is
// returned instead of emitted.
func (r *runner) runProcesses(group []*command, input *string, capture bool) (uint8, *string) {
	c := r.core
	var head *task.Task
	for _, cmd := range group {
		t := task.New(cmd.argv)
		t.Stdout = cmd.stdout
		t.Stderr = cmd.stderr
		if head == nil {
			head = t
		} else {
			head.Chain(t, task.Pipe)
		}
	}

	opts := []task.ManagerOption{
		task.WithDir(c.Wrkdir()),
		task.WithEnv(c.Environ()),
		task.WithTick(c.tick),
		task.WithObserver(c.observer),
	}
	if input != nil {
		opts = append(opts, task.WithInput(*input))
	} else if c.inputClosed.Load() {
		opts = append(opts, task.WithClosedStdin())
	}
	m := task.NewManager(head, opts...)
	if err := m.Start(r.ctx); err != nil {
		return r.fail(err), nil
	}

	var captured strings.Builder
	collect := func() {
		msgs, _ := m.FetchMessages()
		for _, msg := range msgs {
			switch msg := msg.(type) {
			case task.OutputMessage:
				if capture {
					captured.WriteString(msg.Stdout)
					r.write("", msg.Stderr)
				} else {
					r.write(msg.Stdout, msg.Stderr)
				}
			case task.ErrorMessage:
				r.fail(msg.Err)
			}
		}
	}

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	userGone := false
	for running := true; running; {
		select {
		case <-m.Done():
			running = false
		case <-ticker.C:
		}
		collect()
		if running && !userGone {
			userGone = r.forwardUserMessages(m)
		}
	}
	rc, _ := m.Join()
	collect()
	if r.flow == flowInterrupt {
		rc = shellerrors.ExitInterrupted
	}

	if capture {
		s := captured.String()
		return rc, &s
	}
	return rc, nil
}

// forwardUserMessages relays pending user messages to a running manager.
// It reports whether the user end of the stream is gone.
func (r *runner) forwardUserMessages(m *task.Manager) bool {
	if r.core.stream == nil {
		return false
	}
	msgs, err := r.userMessages()
	if err != nil && len(msgs) == 0 {
		_ = m.SendMessage(task.TerminateMessage{})
		r.flow = flowExit
		r.exitCode = shellerrors.ExitAborted
		return true
	}
	for _, msg := range msgs {
		var tx task.TxMessage
		switch msg := msg.(type) {
		case stream.Input:
			tx = task.InputMessage{Text: msg.Text}
		case stream.Interrupt:
			tx = task.TerminateMessage{}
			r.flow = flowInterrupt
		case stream.Kill:
			tx = task.KillMessage{}
		case stream.Signal:
			tx = task.SignalMessage{Signal: msg.Signal}
		case stream.EndOfInput:
			r.core.inputClosed.Store(true)
			tx = task.CloseInputMessage{}
		default:
			continue
		}
		if err := m.SendMessage(tx); err != nil {
			r.core.log.Debug("message not delivered", "error", err)
		}
	}
	return false
}
