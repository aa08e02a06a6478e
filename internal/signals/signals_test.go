package signals

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestSys(t *testing.T) {
	tests := []struct {
		sig  Signal
		want unix.Signal
	}{
		{SIGABRT, unix.SIGABRT},
		{SIGHUP, unix.SIGHUP},
		{SIGINT, unix.SIGINT},
		{SIGQUIT, unix.SIGQUIT},
		{SIGKILL, unix.SIGKILL},
		{SIGUSR1, unix.SIGUSR1},
		{SIGUSR2, unix.SIGUSR2},
		{SIGPIPE, unix.SIGPIPE},
		{SIGTERM, unix.SIGTERM},
		{SIGSTKFLT, unix.SIGSTKFLT},
		{SIGPWR, unix.SIGPWR},
		{SIGWINCH, unix.SIGWINCH},
	}

	for _, tt := range tests {
		t.Run(tt.sig.String(), func(t *testing.T) {
			if got := tt.sig.Sys(); got != tt.want {
				t.Errorf("Sys() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Signal
		wantErr bool
	}{
		{"INT", SIGINT, false},
		{"SIGINT", SIGINT, false},
		{"int", SIGINT, false},
		{"sigterm", SIGTERM, false},
		{" KILL ", SIGKILL, false},
		{"9", SIGKILL, false},
		{"15", SIGTERM, false},
		{"usr1", SIGUSR1, false},
		{"", 0, true},
		{"NOPE", 0, true},
		{"0", 0, true},
		{"999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	if got := SIGINT.String(); got != "SIGINT" {
		t.Errorf("String() = %q, want SIGINT", got)
	}
	if got := SIGKILL.String(); got != "SIGKILL" {
		t.Errorf("String() = %q, want SIGKILL", got)
	}
}

func TestAll(t *testing.T) {
	all := All()
	if len(all) != 31 {
		t.Errorf("len(All()) = %d, want 31", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Fatalf("All() not sorted at %d: %v", i, all)
		}
	}
}
