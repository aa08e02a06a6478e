// Package system is the boundary between a core and the host operating
// system. Cores reach the filesystem and exec through it so that tests can
// swap in MockFS and MockExecutor.
package system

import (
	"io"
	"io/fs"
	"os"
)

// FileSystem is the part of the filesystem a core touches: source reads
// scripts, cd stats its target, redirections open files and the history
// store creates its directory.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error

	// OpenFile opens path for a redirection. flag carries the
	// os.O_TRUNC or os.O_APPEND choice of the operator.
	OpenFile(path string, flag int, perm fs.FileMode) (io.WriteCloser, error)
}

// CommandExecutor resolves external commands and runs exec.
type CommandExecutor interface {
	// LookPath resolves name against pathList, a colon separated PATH
	// value. A name containing a slash is checked as is.
	LookPath(name, pathList string) (string, error)

	// ReplaceProcess replaces the running shell with argv. It returns
	// only on failure.
	ReplaceProcess(argv []string, env []string) error
}

var (
	hostFS       FileSystem      = hostFileSystem{}
	hostExecutor CommandExecutor = &osExecutor{}
)

// DefaultFS returns the host filesystem.
func DefaultFS() FileSystem {
	return hostFS
}

// DefaultExecutor returns the host executor.
func DefaultExecutor() CommandExecutor {
	return hostExecutor
}

type hostFileSystem struct{}

func (hostFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (hostFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (hostFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (hostFileSystem) OpenFile(path string, flag int, perm fs.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(path, flag, perm)
}
