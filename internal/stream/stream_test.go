package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firefly-engineering/shellcore/internal/signals"
)

func TestShellToUser(t *testing.T) {
	shell, user := New(8)

	if !shell.Send(Output{Stdout: "hello\n"}) {
		t.Fatal("Send() = false on an open stream")
	}
	if !shell.Send(Dirs{Dirs: []string{"/home", "/tmp"}}) {
		t.Fatal("Send() = false on an open stream")
	}

	msgs, err := user.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if out, ok := msgs[0].(Output); !ok || out.Stdout != "hello\n" {
		t.Errorf("first message = %#v", msgs[0])
	}
	if dirs, ok := msgs[1].(Dirs); !ok || len(dirs.Dirs) != 2 {
		t.Errorf("second message = %#v", msgs[1])
	}

	msgs, err = user.Receive()
	if err != nil || len(msgs) != 0 {
		t.Errorf("Receive() on empty stream = %v, %v", msgs, err)
	}
}

func TestUserToShell(t *testing.T) {
	shell, user := New(8)

	user.Send(Input{Text: "abc\n"})
	user.Send(Signal{Signal: signals.SIGINT})
	user.Send(Interrupt{})

	msgs, err := shell.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if sig, ok := msgs[1].(Signal); !ok || sig.Signal != signals.SIGINT {
		t.Errorf("second message = %#v", msgs[1])
	}
	if _, ok := msgs[2].(Interrupt); !ok {
		t.Errorf("third message = %#v", msgs[2])
	}
}

func TestClose(t *testing.T) {
	shell, user := New(8)

	shell.Send(Output{Stdout: "last"})
	shell.Close()

	if shell.Send(Output{Stdout: "lost"}) {
		t.Error("Send() after Close = true")
	}

	// Pending messages survive the hang up.
	msgs, err := user.Receive()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Receive() = %v, %v; want the pending message", msgs, err)
	}
	if _, err := user.Receive(); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after drain error = %v, want ErrClosed", err)
	}
	if user.Send(Kill{}) {
		t.Error("user Send() to a closed core = true")
	}

	select {
	case <-user.Done():
	default:
		t.Error("Done() not closed after the core hung up")
	}
}

func TestUserClose(t *testing.T) {
	shell, user := New(1)
	user.Close()

	if _, err := shell.Receive(); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() error = %v, want ErrClosed", err)
	}
	if _, err := shell.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait() error = %v, want ErrClosed", err)
	}
	if shell.Send(Output{}) {
		t.Error("Send() to a closed user = true")
	}
}

func TestSendBlocksUntilReceived(t *testing.T) {
	shell, user := New(1)
	shell.Send(Output{Stdout: "1"})

	sent := make(chan bool)
	go func() {
		sent <- shell.Send(Output{Stdout: "2"})
	}()

	select {
	case <-sent:
		t.Fatal("Send() returned while the buffer was full")
	case <-time.After(20 * time.Millisecond):
	}

	<-user.Messages()
	if !<-sent {
		t.Error("Send() = false after room was made")
	}
}

func TestWait(t *testing.T) {
	shell, user := New(4)

	go func() {
		time.Sleep(10 * time.Millisecond)
		user.Send(Input{Text: "typed"})
	}()

	msg, err := shell.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if in, ok := msg.(Input); !ok || in.Text != "typed" {
		t.Errorf("Wait() = %#v", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := shell.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}
