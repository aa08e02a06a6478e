// Package testutil provides test utilities for shell sessions
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firefly-engineering/shellcore/internal/config"
	"github.com/firefly-engineering/shellcore/internal/shell"
	"github.com/firefly-engineering/shellcore/internal/stream"
)

// DefaultTimeout bounds every command line run by a Session.
const DefaultTimeout = 10 * time.Second

// Session is a shell core wired to an in-memory user. Every message the core
// sends is collected so tests can inspect it.
type Session struct {
	T       *testing.T
	TmpDir  string
	Workdir string
	Home    string
	Paths   *config.Paths
	Core    *shell.Core
	User    *stream.UserStream

	mu       sync.Mutex
	messages []stream.ShellMessage
	wg       sync.WaitGroup
}

// NewSession creates a session working in a fresh temporary directory with
// a minimal environment. opts are applied after the defaults.
func NewSession(t *testing.T, opts ...shell.Option) *Session {
	t.Helper()

	tmpDir := t.TempDir()
	paths := &config.Paths{
		ConfigDir: filepath.Join(tmpDir, "config"),
		StateDir:  filepath.Join(tmpDir, "state"),
	}
	workdir := filepath.Join(tmpDir, "work")
	home := filepath.Join(tmpDir, "home")
	for _, dir := range []string{paths.ConfigDir, paths.StateDir, workdir, home} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	shellEnd, userEnd := stream.New(64)
	base := []shell.Option{
		shell.WithWorkdir(workdir),
		shell.WithEnviron([]string{
			"HOME=" + home,
			"PATH=" + os.Getenv("PATH"),
			"LANG=C",
		}),
		shell.WithSession("test-session"),
		shell.WithTick(2 * time.Millisecond),
	}
	core, err := shell.New(shellEnd, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create shell core: %v", err)
	}

	s := &Session{
		T:       t,
		TmpDir:  tmpDir,
		Workdir: workdir,
		Home:    home,
		Paths:   paths,
		Core:    core,
		User:    userEnd,
	}
	s.wg.Add(1)
	go s.collect()
	t.Cleanup(func() {
		userEnd.Close()
		shellEnd.Close()
		s.wg.Wait()
	})
	return s
}

func (s *Session) collect() {
	defer s.wg.Done()
	for {
		select {
		case msg := <-s.User.Messages():
			s.mu.Lock()
			s.messages = append(s.messages, msg)
			s.mu.Unlock()
		case <-s.User.Done():
			return
		}
	}
}

// Run runs line and returns its exit code. It fails the test when the core
// refuses the line.
func (s *Session) Run(line string) uint8 {
	s.T.Helper()
	rc, err := s.TryRun(line)
	if err != nil {
		s.T.Fatalf("Readline(%q) error: %v", line, err)
	}
	return rc
}

// TryRun runs line and returns what Readline returns.
func (s *Session) TryRun(line string) (uint8, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return s.Core.Readline(ctx, line)
}

// Flush waits until the messages sent so far are collected.
func (s *Session) Flush() {
	deadline := time.Now().Add(time.Second)
	for len(s.User.Messages()) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// The collector may still hold the last message it took.
	time.Sleep(5 * time.Millisecond)
}

// Messages returns the collected messages and forgets them.
func (s *Session) Messages() []stream.ShellMessage {
	s.Flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages
	s.messages = nil
	return msgs
}

// Output is the text of a batch of messages.
type Output struct {
	Stdout   string
	Stderr   string
	Errors   []error
	Messages []stream.ShellMessage
}

// ErrorText joins the error messages, one per line.
func (o Output) ErrorText() string {
	parts := make([]string, len(o.Errors))
	for i, err := range o.Errors {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "\n")
}

// Output returns and forgets the collected output.
func (s *Session) Output() Output {
	var out Output
	var stdout, stderr strings.Builder
	for _, msg := range s.Messages() {
		out.Messages = append(out.Messages, msg)
		switch msg := msg.(type) {
		case stream.Output:
			stdout.WriteString(msg.Stdout)
			stderr.WriteString(msg.Stderr)
		case stream.Error:
			out.Errors = append(out.Errors, msg.Err)
		}
	}
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	return out
}

// Stdout runs line and returns its exit code and standard output.
func (s *Session) Stdout(line string) (uint8, string) {
	s.T.Helper()
	s.Messages()
	rc := s.Run(line)
	return rc, s.Output().Stdout
}

// WriteFile creates a file relative to the working directory.
func (s *Session) WriteFile(name, content string) string {
	s.T.Helper()

	path := filepath.Join(s.Workdir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.T.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		s.T.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// Mkdir creates a directory relative to the working directory.
func (s *Session) Mkdir(name string) string {
	s.T.Helper()

	path := filepath.Join(s.Workdir, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		s.T.Fatalf("Failed to create directory %s: %v", name, err)
	}
	return path
}
