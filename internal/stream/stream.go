// Package stream connects a shell core with its user. The core owns a
// ShellStream; the host owns the matching UserStream.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/firefly-engineering/shellcore/internal/signals"
)

// ErrClosed is returned by Receive once the other end hung up and every
// pending message was delivered.
var ErrClosed = errors.New("stream closed")

// ShellMessage is sent from the core to the user.
type ShellMessage interface {
	shellMessage()
}

// Output carries data for the user's stdout and stderr.
type Output struct {
	Stdout string
	Stderr string
}

// Error reports a failure.
type Error struct {
	Err error
}

// Dirs lists the directory stack, top first.
type Dirs struct {
	Dirs []string
}

// Aliases lists the defined aliases.
type Aliases struct {
	Aliases map[string]string
}

// History lists the recorded command lines, oldest first.
type History struct {
	Entries []string
}

// Timing reports how long a timed statement took.
type Timing struct {
	Duration time.Duration
}

func (Output) shellMessage()  {}
func (Error) shellMessage()   {}
func (Dirs) shellMessage()    {}
func (Aliases) shellMessage() {}
func (History) shellMessage() {}
func (Timing) shellMessage()  {}

// UserMessage is sent from the user to the core.
type UserMessage interface {
	userMessage()
}

// Input is written to the stdin of whatever is running.
type Input struct {
	Text string
}

// Interrupt stops the running statement and the expression around it.
type Interrupt struct{}

// Kill kills the running processes.
type Kill struct{}

// Signal delivers a signal to the running processes.
type Signal struct {
	Signal signals.Signal
}

// EndOfInput closes the stdin of whatever is running.
type EndOfInput struct{}

func (Input) userMessage()      {}
func (Interrupt) userMessage()  {}
func (Kill) userMessage()       {}
func (Signal) userMessage()     {}
func (EndOfInput) userMessage() {}

type endpoint struct {
	done chan struct{}
	once sync.Once
}

func newEndpoint() *endpoint {
	return &endpoint{done: make(chan struct{})}
}

func (e *endpoint) close() {
	e.once.Do(func() { close(e.done) })
}

func (e *endpoint) closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// ShellStream is the core's end of the stream.
type ShellStream struct {
	toUser  chan ShellMessage
	toShell chan UserMessage
	self    *endpoint
	peer    *endpoint
}

// UserStream is the user's end of the stream.
type UserStream struct {
	toUser  chan ShellMessage
	toShell chan UserMessage
	self    *endpoint
	peer    *endpoint
}

// New creates a connected pair of endpoints. buffer is the number of
// messages each direction holds before Send blocks.
func New(buffer int) (*ShellStream, *UserStream) {
	if buffer < 1 {
		buffer = 1
	}
	toUser := make(chan ShellMessage, buffer)
	toShell := make(chan UserMessage, buffer)
	shellEnd, userEnd := newEndpoint(), newEndpoint()

	return &ShellStream{toUser: toUser, toShell: toShell, self: shellEnd, peer: userEnd},
		&UserStream{toUser: toUser, toShell: toShell, self: userEnd, peer: shellEnd}
}

// Send delivers msg to the user. It returns false once either end is closed.
func (s *ShellStream) Send(msg ShellMessage) bool {
	return send(s.toUser, msg, s.self, s.peer)
}

// Receive returns the pending user messages without blocking.
func (s *ShellStream) Receive() ([]UserMessage, error) {
	return drain(s.toShell, s.peer)
}

// Wait blocks until a user message arrives, ctx is done or the user hung up.
func (s *ShellStream) Wait(ctx context.Context) (UserMessage, error) {
	select {
	case msg := <-s.toShell:
		return msg, nil
	default:
	}
	select {
	case msg := <-s.toShell:
		return msg, nil
	case <-s.peer.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close hangs up the core's end.
func (s *ShellStream) Close() {
	s.self.close()
}

// Send delivers msg to the core. It returns false once either end is closed.
func (u *UserStream) Send(msg UserMessage) bool {
	return send(u.toShell, msg, u.self, u.peer)
}

// Receive returns the pending core messages without blocking.
func (u *UserStream) Receive() ([]ShellMessage, error) {
	return drain(u.toUser, u.peer)
}

// Messages exposes the incoming messages for blocking consumers. Use Done to
// learn when the core hung up.
func (u *UserStream) Messages() <-chan ShellMessage {
	return u.toUser
}

// Done is closed when the core's end is closed.
func (u *UserStream) Done() <-chan struct{} {
	return u.peer.done
}

// Close hangs up the user's end.
func (u *UserStream) Close() {
	u.self.close()
}

func send[T any](ch chan T, msg T, self, peer *endpoint) bool {
	if self.closed() || peer.closed() {
		return false
	}
	select {
	case ch <- msg:
		return true
	case <-self.done:
		return false
	case <-peer.done:
		return false
	}
}

func drain[T any](ch chan T, peer *endpoint) ([]T, error) {
	var msgs []T
	for {
		select {
		case msg := <-ch:
			msgs = append(msgs, msg)
		default:
			if len(msgs) == 0 && peer.closed() {
				return nil, ErrClosed
			}
			return msgs, nil
		}
	}
}
