// Package signals names the Unix signals a shell user can deliver to a
// running task and converts them to their platform values.
package signals

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Signal is a Unix signal deliverable to a task.
type Signal int

const (
	SIGABRT   = Signal(unix.SIGABRT)
	SIGALRM   = Signal(unix.SIGALRM)
	SIGBUS    = Signal(unix.SIGBUS)
	SIGCHLD   = Signal(unix.SIGCHLD)
	SIGCONT   = Signal(unix.SIGCONT)
	SIGFPE    = Signal(unix.SIGFPE)
	SIGHUP    = Signal(unix.SIGHUP)
	SIGILL    = Signal(unix.SIGILL)
	SIGINT    = Signal(unix.SIGINT)
	SIGIO     = Signal(unix.SIGIO)
	SIGKILL   = Signal(unix.SIGKILL)
	SIGPIPE   = Signal(unix.SIGPIPE)
	SIGPROF   = Signal(unix.SIGPROF)
	SIGQUIT   = Signal(unix.SIGQUIT)
	SIGSEGV   = Signal(unix.SIGSEGV)
	SIGSTOP   = Signal(unix.SIGSTOP)
	SIGSYS    = Signal(unix.SIGSYS)
	SIGTERM   = Signal(unix.SIGTERM)
	SIGTRAP   = Signal(unix.SIGTRAP)
	SIGTSTP   = Signal(unix.SIGTSTP)
	SIGTTIN   = Signal(unix.SIGTTIN)
	SIGTTOU   = Signal(unix.SIGTTOU)
	SIGURG    = Signal(unix.SIGURG)
	SIGUSR1   = Signal(unix.SIGUSR1)
	SIGUSR2   = Signal(unix.SIGUSR2)
	SIGVTALRM = Signal(unix.SIGVTALRM)
	SIGWINCH  = Signal(unix.SIGWINCH)
	SIGXCPU   = Signal(unix.SIGXCPU)
	SIGXFSZ   = Signal(unix.SIGXFSZ)
)

// supported holds every signal accepted by Parse. Platform files add the
// signals that only exist there.
var supported = map[Signal]bool{
	SIGABRT: true, SIGALRM: true, SIGBUS: true, SIGCHLD: true, SIGCONT: true,
	SIGFPE: true, SIGHUP: true, SIGILL: true, SIGINT: true, SIGIO: true,
	SIGKILL: true, SIGPIPE: true, SIGPROF: true, SIGQUIT: true, SIGSEGV: true,
	SIGSTOP: true, SIGSYS: true, SIGTERM: true, SIGTRAP: true, SIGTSTP: true,
	SIGTTIN: true, SIGTTOU: true, SIGURG: true, SIGUSR1: true, SIGUSR2: true,
	SIGVTALRM: true, SIGWINCH: true, SIGXCPU: true, SIGXFSZ: true,
}

// Sys returns the platform signal value.
func (s Signal) Sys() unix.Signal {
	return unix.Signal(s)
}

// String returns the conventional name, e.g. "SIGINT".
func (s Signal) String() string {
	if name := unix.SignalName(unix.Signal(s)); name != "" {
		return name
	}
	return "SIG" + strconv.Itoa(int(s))
}

// Valid reports whether s is one of the supported signals.
func (s Signal) Valid() bool {
	return supported[s]
}

// Parse accepts "INT", "SIGINT", "int", "sigint" or a signal number.
func Parse(name string) (Signal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty signal name")
	}

	if n, err := strconv.Atoi(name); err == nil {
		s := Signal(n)
		if !s.Valid() {
			return 0, fmt.Errorf("unsupported signal number: %d", n)
		}
		return s, nil
	}

	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	num := unix.SignalNum(upper)
	if num == 0 || !Signal(num).Valid() {
		return 0, fmt.Errorf("unknown signal: %s", name)
	}
	return Signal(num), nil
}

// All returns the supported signals in ascending order.
func All() []Signal {
	out := make([]Signal, 0, len(supported))
	for s := Signal(1); s < 65; s++ {
		if supported[s] {
			out = append(out, s)
		}
	}
	return out
}
