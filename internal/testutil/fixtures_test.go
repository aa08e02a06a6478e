package testutil

import (
	"testing"
)

func TestLoadRC(t *testing.T) {
	for _, name := range []string{"rc.toml", "rc.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadRC(t, name)
			if err != nil {
				t.Fatalf("LoadRC(%s) error: %v", name, err)
			}
			if cfg.Prompt != "{cwd}> " || cfg.HistorySize != 64 || cfg.DirStackSize != 4 {
				t.Errorf("settings = %q %d %d", cfg.Prompt, cfg.HistorySize, cfg.DirStackSize)
			}
			if cfg.Aliases["ll"] != "ls -l" || cfg.Aliases["greet"] != "echo hello" {
				t.Errorf("Aliases = %v", cfg.Aliases)
			}
			if cfg.Env["EDITOR"] != "vi" {
				t.Errorf("Env = %v", cfg.Env)
			}
		})
	}

	if _, err := LoadRC(t, "invalid_rc.toml"); err == nil {
		t.Error("invalid rc should fail to load")
	}
}

func TestSession_Run(t *testing.T) {
	s := NewSession(t)

	rc, out := s.Stdout("echo hello")
	if rc != 0 {
		t.Fatalf("rc = %d, want 0", rc)
	}
	if out != "hello\n" {
		t.Errorf("stdout = %q, want %q", out, "hello\n")
	}
	if s.Core.Wrkdir() != s.Workdir {
		t.Errorf("Wrkdir() = %q, want %q", s.Core.Wrkdir(), s.Workdir)
	}
}
