package system

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// osExecutor implements CommandExecutor using real OS operations.
type osExecutor struct{}

func (e *osExecutor) LookPath(name, pathList string) (string, error) {
	return lookPath(name, pathList, isExecutable)
}

func (e *osExecutor) ReplaceProcess(argv []string, env []string) error {
	if len(argv) == 0 {
		return errors.New("no command to execute")
	}
	binary, err := e.LookPath(argv[0], pathOf(env))
	if err != nil {
		return err
	}
	return unix.Exec(binary, argv, env)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}

// lookPath resolves name against pathList using check to test candidates.
func lookPath(name, pathList string, check func(string) bool) (string, error) {
	if strings.Contains(name, "/") {
		if check(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if check(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func pathOf(env []string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if value, ok := strings.CutPrefix(env[i], "PATH="); ok {
			return value
		}
	}
	return ""
}
