package signals

import "golang.org/x/sys/unix"

const (
	SIGPWR    = Signal(unix.SIGPWR)
	SIGSTKFLT = Signal(unix.SIGSTKFLT)
)

func init() {
	supported[SIGPWR] = true
	supported[SIGSTKFLT] = true
}
