package system

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing/fstest"
)

// Operation names accepted as keys of MockFS.Errs.
const (
	OpReadFile = "ReadFile"
	OpStat     = "Stat"
	OpMkdirAll = "MkdirAll"
	OpOpenFile = "OpenFile"
)

// MockFS is an in-memory FileSystem over an fstest.MapFS. Callers use
// absolute paths; parent directories of a file exist implicitly.
type MockFS struct {
	mu    sync.Mutex
	files fstest.MapFS

	// Errs makes the named operation fail with the given error.
	Errs map[string]error
}

// NewMockFS returns an empty MockFS.
func NewMockFS() *MockFS {
	return &MockFS{files: fstest.MapFS{}, Errs: map[string]error{}}
}

// key maps an absolute path to its MapFS name.
func key(path string) string {
	name := strings.TrimPrefix(filepath.Clean(path), "/")
	if name == "" {
		return "."
	}
	return name
}

func (m *MockFS) fail(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Errs[op]
}

// AddFile creates or replaces a file.
func (m *MockFS) AddFile(path string, data []byte, mode fs.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key(path)] = &fstest.MapFile{Data: data, Mode: mode}
}

// AddDir creates an empty directory, such as a working directory with no
// files yet.
func (m *MockFS) AddDir(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[key(path)]; !ok {
		m.files[key(path)] = &fstest.MapFile{Mode: fs.ModeDir | 0o755}
	}
}

// GetFile returns what was written to path, for instance by a redirection.
func (m *MockFS) GetFile(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[key(path)]
	if !ok || f.Mode.IsDir() {
		return nil, false
	}
	return f.Data, true
}

func (m *MockFS) ReadFile(path string) ([]byte, error) {
	if err := m.fail(OpReadFile); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fs.ReadFile(m.files, key(path))
}

func (m *MockFS) Stat(path string) (fs.FileInfo, error) {
	if err := m.fail(OpStat); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fs.Stat(m.files, key(path))
}

func (m *MockFS) MkdirAll(path string, perm fs.FileMode) error {
	if err := m.fail(OpMkdirAll); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := key(path)
	if f, ok := m.files[name]; ok && !f.Mode.IsDir() {
		return &fs.PathError{Op: "mkdir", Path: path, Err: errors.New("not a directory")}
	}
	m.files[name] = &fstest.MapFile{Mode: fs.ModeDir | perm}
	return nil
}

// OpenFile returns a writer whose content lands in the file on Close.
// os.O_APPEND keeps the current content; anything else truncates.
func (m *MockFS) OpenFile(path string, flag int, perm fs.FileMode) (io.WriteCloser, error) {
	if err := m.fail(OpOpenFile); err != nil {
		return nil, err
	}
	w := &memWriter{fs: m, path: path, perm: perm}
	if flag&os.O_APPEND != 0 {
		if data, ok := m.GetFile(path); ok {
			w.buf.Write(data)
		}
	}
	return w, nil
}

type memWriter struct {
	fs   *MockFS
	path string
	perm fs.FileMode
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.fs.AddFile(w.path, bytes.Clone(w.buf.Bytes()), w.perm)
	return nil
}

// ErrExecMocked is returned by MockExecutor.ReplaceProcess in place of
// replacing the test binary.
var ErrExecMocked = errors.New("mock: exec not performed")

// MockExecutor resolves commands against a fixed set of executables and
// records exec calls.
type MockExecutor struct {
	mu          sync.Mutex
	executables map[string]bool
	replaced    [][]string

	// ReplaceProcessErr, if set, is returned instead of ErrExecMocked.
	ReplaceProcessErr error
}

// NewMockExecutor returns an executor for which exactly the given paths
// are executable.
func NewMockExecutor(executables ...string) *MockExecutor {
	m := &MockExecutor{executables: make(map[string]bool)}
	for _, p := range executables {
		m.executables[p] = true
	}
	return m
}

func (m *MockExecutor) LookPath(name, pathList string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lookPath(name, pathList, func(p string) bool { return m.executables[p] })
}

func (m *MockExecutor) ReplaceProcess(argv []string, env []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = append(m.replaced, append([]string(nil), argv...))
	if m.ReplaceProcessErr != nil {
		return m.ReplaceProcessErr
	}
	return ErrExecMocked
}

// LastReplaced returns the argv of the latest exec.
func (m *MockExecutor) LastReplaced() ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replaced) == 0 {
		return nil, false
	}
	return m.replaced[len(m.replaced)-1], true
}
