package terminal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestColorEnabled(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{
			name: "terminal",
			tty:  true,
			want: true,
		},
		{
			name: "not a terminal",
			tty:  false,
			want: false,
		},
		{
			name: "NO_COLOR wins over a terminal",
			env:  map[string]string{"NO_COLOR": "1"},
			tty:  true,
			want: false,
		},
		{
			name: "NO_COLOR wins over CLICOLOR_FORCE",
			env:  map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"},
			tty:  true,
			want: false,
		},
		{
			name: "CLICOLOR_FORCE without a terminal",
			env:  map[string]string{"CLICOLOR_FORCE": "1"},
			tty:  false,
			want: true,
		},
		{
			name: "CLICOLOR_FORCE=0 is ignored",
			env:  map[string]string{"CLICOLOR_FORCE": "0"},
			tty:  false,
			want: false,
		},
		{
			name: "dumb terminal",
			env:  map[string]string{"TERM": "dumb"},
			tty:  true,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(key string) string { return tt.env[key] }
			if got := colorEnabled(getenv, tt.tty); got != tt.want {
				t.Errorf("colorEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(nil) {
		t.Error("IsTerminal(nil) = true, want false")
	}

	f, err := os.Create(filepath.Join(t.TempDir(), "plain"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Error("IsTerminal(regular file) = true, want false")
	}
}
