package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/firefly-engineering/shellcore/internal/parser"
	"github.com/firefly-engineering/shellcore/internal/prompt"
	"github.com/firefly-engineering/shellcore/internal/shell"
	"github.com/firefly-engineering/shellcore/internal/signals"
	"github.com/firefly-engineering/shellcore/internal/stream"
)

// session hosts a core: it runs command lines on their own goroutine and
// moves messages between the stream and the terminal until they finish.
type session struct {
	core *shell.Core
	user *stream.UserStream

	out    io.Writer
	errOut io.Writer

	// lines delivers stdin line by line; it is closed at EOF.
	lines <-chan string
	sigs  <-chan os.Signal

	// forwardInput passes stdin to running commands. It is off when stdin
	// holds the command lines themselves.
	forwardInput bool

	renderer *prompt.Renderer
	userName string
	host     string
}

// readLines splits r into lines, keeping the final line even without a
// trailing newline.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

type result struct {
	rc  uint8
	err error
}

// run calls fn on a new goroutine and serves the stream until it returns.
// While fn runs, stdin lines become Input, EOF becomes EndOfInput and
// signals are forwarded.
func (s *session) run(fn func() (uint8, error)) (uint8, error) {
	done := make(chan result, 1)
	go func() {
		rc, err := fn()
		done <- result{rc, err}
	}()

	var lines <-chan string
	if s.forwardInput {
		lines = s.lines
	}
	for {
		select {
		case msg := <-s.user.Messages():
			s.render(msg)
		case res := <-done:
			s.drain()
			return res.rc, res.err
		case line, ok := <-lines:
			if !ok {
				lines = nil
				s.user.Send(stream.EndOfInput{})
				continue
			}
			s.user.Send(stream.Input{Text: line})
		case sig := <-s.sigs:
			s.forward(sig)
		}
	}
}

// drain renders the messages left in the stream.
func (s *session) drain() {
	msgs, _ := s.user.Receive()
	for _, msg := range msgs {
		s.render(msg)
	}
}

func (s *session) forward(sig os.Signal) {
	n, ok := sig.(unix.Signal)
	if !ok {
		return
	}
	if n == unix.SIGINT {
		s.user.Send(stream.Interrupt{})
		return
	}
	s.user.Send(stream.Signal{Signal: signals.Signal(n)})
}

func (s *session) render(msg stream.ShellMessage) {
	switch m := msg.(type) {
	case stream.Output:
		if m.Stdout != "" {
			fmt.Fprint(s.out, m.Stdout)
		}
		if m.Stderr != "" {
			fmt.Fprint(s.errOut, m.Stderr)
		}
	case stream.Error:
		fmt.Fprintf(s.errOut, "shellcore: %v\n", m.Err)
	case stream.Dirs:
		fmt.Fprintln(s.out, strings.Join(m.Dirs, " "))
	case stream.Aliases:
		names := make([]string, 0, len(m.Aliases))
		for name := range m.Aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(s.out, "alias %s='%s'\n", name, m.Aliases[name])
		}
	case stream.History:
		for i, line := range m.Entries {
			fmt.Fprintf(s.out, "%5d  %s\n", i+1, line)
		}
	case stream.Timing:
		fmt.Fprintf(s.errOut, "\nreal\t%.3fs\n", m.Duration.Seconds())
	}
}

// readline runs one command line.
func (s *session) readline(ctx context.Context, line string) (uint8, error) {
	return s.run(func() (uint8, error) {
		return s.core.Readline(ctx, line)
	})
}

// source runs a script.
func (s *session) source(ctx context.Context, path string) (uint8, error) {
	return s.run(func() (uint8, error) {
		return s.core.Source(ctx, path)
	})
}

func (s *session) prompt(more bool) {
	if more {
		fmt.Fprint(s.errOut, prompt.Continuation)
		return
	}
	info := prompt.Info{
		User:     s.userName,
		Host:     s.host,
		Cwd:      s.core.Wrkdir(),
		Home:     s.core.Home(),
		ExitCode: s.core.ExitCode(),
	}
	fmt.Fprint(s.errOut, s.renderer.Render(s.core.Prompt(), info))
}

// repl reads command lines until EOF or exit and returns the last exit
// code. Incomplete lines are joined with the following ones. An interrupt
// at the prompt drops the pending input.
func (s *session) repl(ctx context.Context) uint8 {
	var pending []string
	for s.core.State() != shell.Terminated {
		s.prompt(len(pending) > 0)

		var line string
		select {
		case l, ok := <-s.lines:
			if !ok {
				fmt.Fprintln(s.errOut)
				return s.core.ExitCode()
			}
			line = strings.TrimSuffix(l, "\n")
		case sig := <-s.sigs:
			if sig != unix.SIGINT {
				return s.core.ExitCode()
			}
			pending = nil
			fmt.Fprintln(s.errOut)
			continue
		case <-ctx.Done():
			return s.core.ExitCode()
		}

		src := strings.Join(append(pending, line), "\n")
		_, err := s.readline(ctx, src)
		switch {
		case err == nil:
			pending = nil
		case parser.NeedsMore(err):
			pending = append(pending, line)
		default:
			return s.core.ExitCode()
		}
	}
	return s.core.ExitCode()
}
