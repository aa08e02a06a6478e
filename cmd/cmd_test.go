package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/shellcore/internal/app"
	"github.com/firefly-engineering/shellcore/internal/config"
	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
	"github.com/firefly-engineering/shellcore/internal/stream"
)

// testEnv holds test environment state
type testEnv struct {
	tmpDir    string
	configDir string
	stateDir  string
	workDir   string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	env := &testEnv{
		tmpDir:    tmpDir,
		configDir: filepath.Join(tmpDir, "config"),
		stateDir:  filepath.Join(tmpDir, "state"),
		workDir:   filepath.Join(tmpDir, "work"),
	}
	for _, dir := range []string{env.configDir, env.stateDir, env.workDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	app.SetDefault(app.New(app.WithPaths(&config.Paths{
		ConfigDir: env.configDir,
		StateDir:  env.stateDir,
	})))
	t.Cleanup(app.ResetDefault)
	t.Chdir(env.workDir)

	return env
}

func (e *testEnv) writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.configDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.workDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// resetFlags restores every flag of rootCmd and its subcommands, cobra's
// help flag included, to its default.
func resetFlags() {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// executeCommand runs the root command with args and an empty stdin.
func executeCommand(args ...string) (string, string, error) {
	return executeWithInput("", args...)
}

func executeWithInput(stdin string, args ...string) (string, string, error) {
	resetFlags()

	cmd := rootCmd
	cmd.SetArgs(args)

	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()

	// Reset args for next test
	cmd.SetArgs(nil)
	cmd.SetIn(nil)
	cmd.SetOut(nil)
	cmd.SetErr(nil)

	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	setupTestEnv(t)
	stdout, _, err := executeCommand("--help")
	require.NoError(t, err)

	assert.Contains(t, stdout, "shellcore")
	for _, flag := range []string{"--command", "--config", "--norc", "--history-file", "--no-history", "--metrics-addr", "--env-file"} {
		assert.Contains(t, stdout, flag)
	}
}

func TestGlobalFlags(t *testing.T) {
	setupTestEnv(t)
	stdout, _, err := executeCommand("--help")
	require.NoError(t, err)

	assert.Contains(t, stdout, "--verbose")
	assert.Contains(t, stdout, "--json")
}

func TestHistoryCommand_Help(t *testing.T) {
	setupTestEnv(t)
	stdout, _, err := executeCommand("history", "--help")
	require.NoError(t, err)

	assert.Contains(t, stdout, "--pick")
	assert.Contains(t, stdout, "--lines")
}

func TestHelp_DoesNotCarryOver(t *testing.T) {
	setupTestEnv(t)
	for _, args := range [][]string{{"--help"}, {"history", "--help"}, {"--env-file", "a.env", "--help"}} {
		_, _, err := executeCommand(args...)
		require.NoError(t, err)

		stdout, _, err := executeCommand("--norc", "--no-history", "-c", "echo after")
		require.NoError(t, err)
		assert.Equal(t, "after\n", stdout, "after %v", args)
	}
	assert.Empty(t, envFiles)
}

func TestCommandFlag(t *testing.T) {
	setupTestEnv(t)

	tests := []struct {
		name   string
		args   []string
		stdout string
		code   int
	}{
		{"echo", []string{"-c", "echo hello"}, "hello\n", 0},
		{"pipeline", []string{"-c", "echo a b | wc -w | tr -d ' '"}, "2\n", 0},
		{"false", []string{"-c", "false"}, "", 1},
		{"exit", []string{"-c", "echo before; exit 3; echo after"}, "before\n", 3},
		{"positional", []string{"-c", "echo $0 $1 $2", "zero", "one", "two"}, "zero one two\n", 0},
		{"incomplete", []string{"-c", "if true; then"}, "", shellerrors.ExitUsage},
		{"not found", []string{"-c", "no_such_command_xyz"}, "", shellerrors.ExitCommandNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--norc", "--no-history"}, tt.args...)
			stdout, _, err := executeCommand(args...)
			assert.Equal(t, tt.stdout, stdout)
			if tt.code == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, shellerrors.GetExitCode(err))
		})
	}
}

func TestCommandFlag_SilentExitStatus(t *testing.T) {
	setupTestEnv(t)
	_, _, err := executeCommand("--norc", "--no-history", "-c", "exit 7")
	require.Error(t, err)
	assert.Empty(t, err.Error(), "a non-zero status carries no message")
}

func TestCommandFlag_Errors(t *testing.T) {
	setupTestEnv(t)
	_, stderr, err := executeCommand("--norc", "--no-history", "-c", "cd /no/such/dir")
	require.Error(t, err)
	assert.Contains(t, stderr, "shellcore: ")
	assert.Contains(t, stderr, "no such file")
}

func TestCommandFlag_Stdin(t *testing.T) {
	setupTestEnv(t)
	stdout, _, err := executeWithInput("one\ntwo\n", "--norc", "--no-history", "-c", "cat")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", stdout)
}

func TestCommandFlag_StdinEndsBeforeReader(t *testing.T) {
	setupTestEnv(t)

	type outcome struct {
		stdout string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		stdout, _, err := executeWithInput("hi\n", "--norc", "--no-history", "-c", "sleep 0.2; cat; echo end")
		done <- outcome{stdout, err}
	}()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.True(t, strings.HasSuffix(o.stdout, "end\n"), "stdout = %q", o.stdout)
	case <-time.After(10 * time.Second):
		t.Fatal("cat started after stdin ended never saw EOF")
	}
}

func TestScriptFile_LastStatus(t *testing.T) {
	env := setupTestEnv(t)
	script := env.writeFile(t, "fail.sh", "echo running\nfalse\n\n# trailing comment\n")

	stdout, _, err := executeCommand("--norc", "--no-history", script)
	require.Error(t, err)
	assert.Equal(t, 1, shellerrors.GetExitCode(err))
	assert.Equal(t, "running\n", stdout)
}

func TestScriptFile(t *testing.T) {
	env := setupTestEnv(t)
	script := env.writeFile(t, "script.sh", `echo "$0:$1"
greet() {
	echo "hello $1"
}
greet "$2"
exit 4
`)

	stdout, _, err := executeCommand("--norc", "--no-history", script, "first", "world")
	require.Error(t, err)
	assert.Equal(t, 4, shellerrors.GetExitCode(err))
	assert.Equal(t, script+":first\nhello world\n", stdout)
}

func TestScriptFile_Missing(t *testing.T) {
	setupTestEnv(t)
	_, stderr, err := executeCommand("--norc", "--no-history", "missing.sh")
	require.Error(t, err)
	assert.NotEqual(t, 0, shellerrors.GetExitCode(err))
	assert.Contains(t, stderr, "missing.sh")
}

func TestStdinScript(t *testing.T) {
	setupTestEnv(t)
	input := "echo start\nfor i in 1 2; do\n  echo $i\ndone\nX=done\necho $X\n"

	stdout, _, err := executeWithInput(input, "--norc", "--no-history")
	require.NoError(t, err)
	assert.Equal(t, "start\n1\n2\ndone\n", stdout)
}

func TestStdinScript_UnexpectedEnd(t *testing.T) {
	setupTestEnv(t)
	_, _, err := executeWithInput("echo ok\nwhile true; do\n", "--norc", "--no-history")
	require.Error(t, err)
	assert.Equal(t, shellerrors.ExitUsage, shellerrors.GetExitCode(err))
}

func TestStdinScript_Exit(t *testing.T) {
	setupTestEnv(t)
	stdout, _, err := executeWithInput("echo a\nexit 5\necho b\n", "--norc", "--no-history")
	require.Error(t, err)
	assert.Equal(t, 5, shellerrors.GetExitCode(err))
	assert.Equal(t, "a\n", stdout)
}

func TestRCFile(t *testing.T) {
	env := setupTestEnv(t)
	env.writeConfig(t, "setup.sh", "GREETING=hi\n")
	env.writeConfig(t, "config.toml", `
rc = "setup.sh"

[aliases]
greet = "echo $GREETING from alias"

[env]
EDITOR = "vi"
`)

	stdout, _, err := executeCommand("--no-history", "-c", "greet; echo $EDITOR")
	require.NoError(t, err)
	assert.Equal(t, "hi from alias\nvi\n", stdout)
}

func TestRCFile_NoRC(t *testing.T) {
	env := setupTestEnv(t)
	env.writeConfig(t, "config.toml", "[env]\nSHELLCORE_TEST_VAR = \"set\"\n")

	stdout, _, err := executeCommand("--norc", "--no-history", "-c", "echo x${SHELLCORE_TEST_VAR}x")
	require.NoError(t, err)
	assert.Equal(t, "xx\n", stdout)
}

func TestRCFile_ExplicitYAML(t *testing.T) {
	env := setupTestEnv(t)
	path := env.writeConfig(t, "custom.yaml", "aliases:\n  hello: echo yaml alias\n")

	stdout, _, err := executeCommand("--config", path, "--no-history", "-c", "hello")
	require.NoError(t, err)
	assert.Equal(t, "yaml alias\n", stdout)
}

func TestRCFile_Invalid(t *testing.T) {
	env := setupTestEnv(t)
	env.writeConfig(t, "config.toml", "history_size = -1\n")

	_, _, err := executeCommand("--no-history", "-c", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rc file")
}

func TestEnvFile(t *testing.T) {
	env := setupTestEnv(t)
	first := env.writeFile(t, "first.env", "FOO=from-file\nBAR=bar\n")
	second := env.writeFile(t, "second.env", "BAZ=baz\n")

	stdout, _, err := executeCommand("--norc", "--no-history",
		"--env-file", first, "--env-file", second, "-c", "echo $FOO $BAR $BAZ")
	require.NoError(t, err)
	assert.Equal(t, "from-file bar baz\n", stdout)
}

func TestHistoryCommand(t *testing.T) {
	env := setupTestEnv(t)
	db := filepath.Join(env.tmpDir, "history.db")

	for _, line := range []string{"echo first", "echo second", "false"} {
		_, _, _ = executeCommand("--norc", "--history-file", db, "-c", line)
	}

	stdout, _, err := executeCommand("--norc", "--history-file", db, "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "echo first")
	assert.Contains(t, stdout, "echo second")
	assert.Contains(t, stdout, "✗ ")

	stdout, _, err = executeCommand("--norc", "--history-file", db, "history", "-n", "1")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "echo first")
	assert.Contains(t, stdout, "false")
}

func TestHistoryCommand_DefaultLocation(t *testing.T) {
	env := setupTestEnv(t)
	_, _, err := executeCommand("--norc", "-c", "echo stored")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(env.stateDir, "history.db"))
	require.NoError(t, err)

	stdout, _, err := executeCommand("--norc", "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "echo stored")
}

func TestHistoryCommand_Empty(t *testing.T) {
	setupTestEnv(t)
	stdout, _, err := executeCommand("--norc", "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No history recorded")
}

func TestAuditLogCommand(t *testing.T) {
	env := setupTestEnv(t)
	env.writeConfig(t, "config.toml", "audit_dir = \"audit\"\n")

	_, _, err := executeCommand("--no-history", "-c", "echo audited")
	require.NoError(t, err)

	stdout, _, err := executeCommand("audit-log")
	require.NoError(t, err)
	sessions := strings.Fields(stdout)
	require.Len(t, sessions, 1)

	stdout, _, err = executeCommand("audit-log", sessions[0])
	require.NoError(t, err)
	assert.Contains(t, stdout, "command")
	assert.Contains(t, stdout, "echo audited rc=0")

	stdout, _, err = executeCommand("audit-log", "--json-lines", sessions[0])
	require.NoError(t, err)
	assert.Contains(t, stdout, `"command":"echo audited"`)
}

func TestSessionRender(t *testing.T) {
	var out, errOut bytes.Buffer
	s := &session{out: &out, errOut: &errOut}

	s.render(stream.Output{Stdout: "out\n", Stderr: "err\n"})
	s.render(stream.Dirs{Dirs: []string{"/a", "/b"}})
	s.render(stream.Aliases{Aliases: map[string]string{"zz": "echo z", "aa": "ls -l"}})
	s.render(stream.History{Entries: []string{"echo one", "echo two"}})
	s.render(stream.Timing{Duration: 1500 * time.Millisecond})
	s.render(stream.Error{Err: shellerrors.CommandNotFound("nope")})

	assert.Equal(t, "out\n"+
		"/a /b\n"+
		"alias aa='ls -l'\nalias zz='echo z'\n"+
		"    1  echo one\n    2  echo two\n", out.String())
	assert.Contains(t, errOut.String(), "err\n")
	assert.Contains(t, errOut.String(), "real\t1.500s")
	assert.Contains(t, errOut.String(), "shellcore: ")
	assert.Contains(t, errOut.String(), "nope")
}

func TestReadLines(t *testing.T) {
	var lines []string
	for line := range readLines(strings.NewReader("a\nb\n\nlast")) {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"a\n", "b\n", "\n", "last"}, lines)
}
