package system

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestMockFS_SourceAndRedirect(t *testing.T) {
	mockFS := NewMockFS()
	mockFS.AddDir("/home/me/empty")
	mockFS.AddFile("/home/me/rc.sh", []byte("alias ll='ls -l'\n"), 0o644)

	data, err := mockFS.ReadFile("/home/me/rc.sh")
	if err != nil || string(data) != "alias ll='ls -l'\n" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if _, err := mockFS.ReadFile("/home/me/missing.sh"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile missing error = %v, want fs.ErrNotExist", err)
	}

	for _, dir := range []string{"/", "/home", "/home/me", "/home/me/empty"} {
		info, err := mockFS.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("Stat(%s) = %v, %v; want a directory", dir, info, err)
		}
	}
	info, err := mockFS.Stat("/home/me/rc.sh")
	if err != nil || info.IsDir() || info.Size() != 17 {
		t.Errorf("Stat(rc.sh) = %v, %v", info, err)
	}

	w, err := mockFS.OpenFile("/home/me/out.txt", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("OpenFile error: %v", err)
	}
	w.Write([]byte("one\n"))
	if _, ok := mockFS.GetFile("/home/me/out.txt"); ok {
		t.Error("content should land on Close")
	}
	w.Close()

	w, _ = mockFS.OpenFile("/home/me/out.txt", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	w.Write([]byte("two\n"))
	w.Close()
	if data, ok := mockFS.GetFile("/home/me/out.txt"); !ok || string(data) != "one\ntwo\n" {
		t.Errorf("after >> GetFile = %q, %v", data, ok)
	}

	w, _ = mockFS.OpenFile("/home/me/out.txt", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	w.Write([]byte("three\n"))
	w.Close()
	if data, _ := mockFS.GetFile("/home/me/out.txt"); string(data) != "three\n" {
		t.Errorf("after > GetFile = %q", data)
	}
}

func TestMockFS_MkdirAll(t *testing.T) {
	mockFS := NewMockFS()
	if err := mockFS.MkdirAll("/state/shellcore", 0o755); err != nil {
		t.Fatalf("MkdirAll error: %v", err)
	}
	if info, err := mockFS.Stat("/state"); err != nil || !info.IsDir() {
		t.Errorf("parent should exist: %v", err)
	}

	mockFS.AddFile("/state/file", nil, 0o644)
	if err := mockFS.MkdirAll("/state/file", 0o755); err == nil {
		t.Error("MkdirAll over a file should fail")
	}
}

func TestMockFS_Errs(t *testing.T) {
	injected := errors.New("injected")
	mockFS := NewMockFS()
	mockFS.AddFile("/any", []byte("x"), 0o644)
	mockFS.Errs[OpReadFile] = injected
	mockFS.Errs[OpOpenFile] = injected

	if _, err := mockFS.ReadFile("/any"); err != injected {
		t.Errorf("ReadFile error = %v, want injected", err)
	}
	if _, err := mockFS.OpenFile("/any", os.O_WRONLY, 0o644); err != injected {
		t.Errorf("OpenFile error = %v, want injected", err)
	}
	if _, err := mockFS.Stat("/any"); err != nil {
		t.Errorf("Stat should be unaffected: %v", err)
	}
}

func TestMockExecutor_LookPath(t *testing.T) {
	m := NewMockExecutor("/usr/bin/ls", "/opt/tool")

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"ls", "/bin:/usr/bin", "/usr/bin/ls", false},
		{"ls", "/bin", "", true},
		{"/opt/tool", "", "/opt/tool", false},
		{"missing", "/usr/bin", "", true},
	}
	for _, tt := range tests {
		got, err := m.LookPath(tt.name, tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("LookPath(%q, %q) error = %v", tt.name, tt.path, err)
		}
		if err != nil && !errors.Is(err, exec.ErrNotFound) {
			t.Errorf("LookPath error should wrap exec.ErrNotFound: %v", err)
		}
		if got != tt.want {
			t.Errorf("LookPath(%q, %q) = %q, want %q", tt.name, tt.path, got, tt.want)
		}
	}
}

func TestMockExecutor_ReplaceProcess(t *testing.T) {
	m := NewMockExecutor()
	if _, ok := m.LastReplaced(); ok {
		t.Error("no exec recorded yet")
	}
	if err := m.ReplaceProcess([]string{"ls", "-l"}, nil); !errors.Is(err, ErrExecMocked) {
		t.Errorf("ReplaceProcess error = %v, want ErrExecMocked", err)
	}
	argv, ok := m.LastReplaced()
	if !ok || len(argv) != 2 || argv[1] != "-l" {
		t.Errorf("LastReplaced = %v, %v", argv, ok)
	}

	m.ReplaceProcessErr = exec.ErrNotFound
	if err := m.ReplaceProcess([]string{"nope"}, nil); err != exec.ErrNotFound {
		t.Errorf("ReplaceProcess error = %v, want the configured one", err)
	}
}

func TestOSExecutor_LookPath(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "tool")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plain"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	e := &osExecutor{}
	got, err := e.LookPath("tool", "/nonexistent"+string(filepath.ListSeparator)+dir)
	if err != nil || got != tool {
		t.Errorf("LookPath(tool) = %q, %v", got, err)
	}
	if _, err := e.LookPath("plain", dir); err == nil {
		t.Error("non-executable file should not resolve")
	}
}

func TestPathOf(t *testing.T) {
	env := []string{"HOME=/root", "PATH=/bin", "PATH=/usr/bin"}
	if got := pathOf(env); got != "/usr/bin" {
		t.Errorf("pathOf = %q, want last PATH entry", got)
	}
	if got := pathOf(nil); got != "" {
		t.Errorf("pathOf(nil) = %q", got)
	}
}
