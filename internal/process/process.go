// Package process runs a single child process with non-blocking access to
// its standard streams.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/firefly-engineering/shellcore/internal/signals"
)

var (
	// ErrNoArgs is returned by Exec when argv is empty.
	ErrNoArgs = errors.New("process was not provided with a command")

	// ErrCouldNotStart wraps every failure to spawn the child.
	ErrCouldNotStart = errors.New("could not start process")

	// ErrBrokenPipe is returned once a stream can no longer be used.
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrInputFull is returned when the stdin queue is saturated.
	ErrInputFull = errors.New("input queue full")
)

const (
	readBufferSize = 8192
	inputQueueSize = 128
	raiseWait      = 100 * time.Millisecond
	killWait       = 5 * time.Second
)

// Output holds the data read from the child's stdout and stderr.
type Output struct {
	Stdout string
	Stderr string
}

// Empty reports whether neither stream produced data.
func (o Output) Empty() bool {
	return o.Stdout == "" && o.Stderr == ""
}

type chunk struct {
	data   []byte
	stderr bool
}

// Process is a running (or exited) child process.
type Process struct {
	Command string
	Args    []string

	cmd *exec.Cmd

	inputMu     sync.Mutex
	inputs      chan string
	inputClosed bool

	chunks chan chunk
	exited chan struct{}

	mu         sync.Mutex
	exitStatus uint8
	hasStatus  bool
}

type options struct {
	dir    string
	env    []string
	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

// Option configures Exec.
type Option func(*options)

// WithDir sets the working directory of the child.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithEnv sets the environment of the child ("KEY=value" entries).
func WithEnv(env []string) Option {
	return func(o *options) {
		o.env = env
	}
}

// WithStdin connects the child's stdin to f instead of a pipe owned by the
// Process. The caller keeps ownership of f.
func WithStdin(f *os.File) Option {
	return func(o *options) {
		o.stdin = f
	}
}

// WithStdout connects the child's stdout to f. Nothing is read back from it.
func WithStdout(f *os.File) Option {
	return func(o *options) {
		o.stdout = f
	}
}

// WithStderr connects the child's stderr to f. Nothing is read back from it.
func WithStderr(f *os.File) Option {
	return func(o *options) {
		o.stderr = f
	}
}

// Exec starts argv[0] with argv[1:] as arguments.
func Exec(argv []string, opts ...Option) (*Process, error) {
	if len(argv) == 0 {
		return nil, ErrNoArgs
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = o.dir
	if o.env != nil {
		cmd.Env = o.env
	}

	// Parent-side ends closed on start failure; child-side ends after start.
	var parentEnds, childEnds []*os.File
	closeAll := func(files []*os.File) {
		for _, f := range files {
			_ = f.Close()
		}
	}

	var stdinW *os.File
	if o.stdin != nil {
		cmd.Stdin = o.stdin
	} else {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCouldNotStart, err)
		}
		cmd.Stdin = r
		stdinW = w
		parentEnds = append(parentEnds, w)
		childEnds = append(childEnds, r)
	}

	var readers []*os.File
	var readerIsStderr []bool
	attach := func(target *os.File, isStderr bool) (*os.File, error) {
		if target != nil {
			return target, nil
		}
		r, w, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
		readerIsStderr = append(readerIsStderr, isStderr)
		parentEnds = append(parentEnds, r)
		childEnds = append(childEnds, w)
		return w, nil
	}

	stdout, err := attach(o.stdout, false)
	if err != nil {
		closeAll(parentEnds)
		closeAll(childEnds)
		return nil, fmt.Errorf("%w: %v", ErrCouldNotStart, err)
	}
	cmd.Stdout = stdout

	stderr, err := attach(o.stderr, true)
	if err != nil {
		closeAll(parentEnds)
		closeAll(childEnds)
		return nil, fmt.Errorf("%w: %v", ErrCouldNotStart, err)
	}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		closeAll(parentEnds)
		closeAll(childEnds)
		return nil, fmt.Errorf("%w: %s: %w", ErrCouldNotStart, argv[0], err)
	}
	closeAll(childEnds)

	p := &Process{
		Command: argv[0],
		Args:    append([]string(nil), argv[1:]...),
		cmd:     cmd,
		chunks:  make(chan chunk, 64),
		exited:  make(chan struct{}),
	}

	var pumps sync.WaitGroup
	for i, r := range readers {
		pumps.Add(1)
		go p.pump(r, readerIsStderr[i], &pumps)
	}
	go func() {
		pumps.Wait()
		close(p.chunks)
	}()

	if stdinW != nil {
		p.inputs = make(chan string, inputQueueSize)
		go p.feed(stdinW)
	} else {
		p.inputClosed = true
	}

	go p.wait()

	return p, nil
}

func (p *Process) pump(r *os.File, isStderr bool, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()

	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			p.chunks <- chunk{data: data, stderr: isStderr}
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) feed(w *os.File) {
	defer w.Close()
	for input := range p.inputs {
		if _, err := io.WriteString(w, input); err != nil {
			// Child stopped reading; drop the rest.
			for range p.inputs {
			}
			return
		}
	}
}

func (p *Process) wait() {
	_ = p.cmd.Wait()

	status := uint8(255)
	if state := p.cmd.ProcessState; state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status = uint8(ws.Signal())
		} else {
			status = uint8(state.ExitCode())
		}
	}

	p.mu.Lock()
	p.exitStatus = status
	p.hasStatus = true
	p.mu.Unlock()

	p.CloseStdin()
	close(p.exited)
}

// Read returns the output that arrived within timeout. A zero timeout never
// blocks. Once no more output can arrive (the piped streams reached EOF and
// every byte was delivered) Read returns ErrBrokenPipe.
func (p *Process) Read(timeout time.Duration) (Output, error) {
	var out Output

	if timeout <= 0 {
		select {
		case c, ok := <-p.chunks:
			if !ok {
				return out, ErrBrokenPipe
			}
			out.add(c)
		default:
			return out, nil
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case c, ok := <-p.chunks:
			if !ok {
				return out, ErrBrokenPipe
			}
			out.add(c)
		case <-timer.C:
			return out, nil
		}
	}

	for {
		select {
		case c, ok := <-p.chunks:
			if !ok {
				return out, nil
			}
			out.add(c)
		default:
			return out, nil
		}
	}
}

func (o *Output) add(c chunk) {
	if c.stderr {
		o.Stderr += string(c.data)
	} else {
		o.Stdout += string(c.data)
	}
}

// Write queues input for the child's stdin.
func (p *Process) Write(input string) error {
	if !p.IsRunning() {
		return ErrBrokenPipe
	}

	p.inputMu.Lock()
	defer p.inputMu.Unlock()
	if p.inputClosed {
		return ErrBrokenPipe
	}
	select {
	case p.inputs <- input:
		return nil
	default:
		return ErrInputFull
	}
}

// CloseStdin delivers EOF to the child once queued input was written.
func (p *Process) CloseStdin() {
	p.inputMu.Lock()
	defer p.inputMu.Unlock()
	if p.inputClosed {
		return
	}
	p.inputClosed = true
	close(p.inputs)
}

// IsRunning reports whether the child is still alive.
func (p *Process) IsRunning() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitStatus returns the exit code, or the signal number when the child was
// terminated by a signal. ok is false while the child runs.
func (p *Process) ExitStatus() (status uint8, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitStatus, p.hasStatus
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Raise delivers sig and gives the child a short window to exit.
func (p *Process) Raise(sig signals.Signal) error {
	if !p.IsRunning() {
		return ErrBrokenPipe
	}
	if err := unix.Kill(p.Pid(), sig.Sys()); err != nil {
		return fmt.Errorf("send %s to %d: %w", sig, p.Pid(), err)
	}

	timer := time.NewTimer(raiseWait)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
	}
	return nil
}

// Kill sends SIGKILL and waits for the child to be reaped.
func (p *Process) Kill() error {
	if !p.IsRunning() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %d: %w", p.Pid(), err)
	}

	timer := time.NewTimer(killWait)
	defer timer.Stop()
	select {
	case <-p.exited:
		return nil
	case <-timer.C:
		return fmt.Errorf("kill %d: process did not exit", p.Pid())
	}
}

// Close terminates a still running child and releases its stdin.
func (p *Process) Close() error {
	p.CloseStdin()
	if p.IsRunning() {
		return p.Raise(signals.SIGTERM)
	}
	return nil
}
