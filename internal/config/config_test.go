package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultPrompt, cfg.Prompt)
	assert.Equal(t, DefaultHistorySize, cfg.HistorySize)
	assert.Equal(t, DefaultDirStackSize, cfg.DirStackSize)
	assert.NotNil(t, cfg.Aliases)
	assert.NotNil(t, cfg.Env)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_STATE_HOME", "/state")

	paths := DefaultPaths()
	assert.Equal(t, "/cfg/shellcore", paths.ConfigDir)
	assert.Equal(t, "/state/shellcore", paths.StateDir)
	assert.Equal(t, "/state/shellcore/history.db", paths.HistoryDB())
	assert.Equal(t, "/state/shellcore/audit", paths.AuditDir())
}

func TestPaths_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	paths := &Paths{ConfigDir: dir}
	assert.Empty(t, paths.ConfigFile())

	writeFile(t, filepath.Join(dir, "config.yaml"), "prompt: x\n")
	assert.Equal(t, filepath.Join(dir, "config.yaml"), paths.ConfigFile())

	writeFile(t, filepath.Join(dir, "config.toml"), "prompt = \"y\"\n")
	assert.Equal(t, filepath.Join(dir, "config.toml"), paths.ConfigFile(), "toml is preferred")

	cfg, err := LoadDefault(paths)
	require.NoError(t, err)
	assert.Equal(t, "y", cfg.Prompt)

	cfg, err = LoadDefault(&Paths{ConfigDir: filepath.Join(dir, "missing")})
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompt, cfg.Prompt)
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
prompt = "> "
history_size = 50
history_file = "hist.db"
rc = "/etc/shellrc"
verbose = true

[aliases]
ll = "ls -l"

[env]
EDITOR = "vi"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "> ", cfg.Prompt)
	assert.Equal(t, 50, cfg.HistorySize)
	assert.Equal(t, DefaultDirStackSize, cfg.DirStackSize, "unset fields keep defaults")
	assert.Equal(t, filepath.Join(dir, "hist.db"), cfg.HistoryFile)
	assert.Equal(t, "/etc/shellrc", cfg.RC)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, map[string]string{"ll": "ls -l"}, cfg.Aliases)
	assert.Equal(t, "vi", cfg.Env["EDITOR"])
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	writeFile(t, path, `
prompt: "$ "
dir_stack_size: 4
watch: true
aliases:
  gs: git status
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "$ ", cfg.Prompt)
	assert.Equal(t, 4, cfg.DirStackSize)
	assert.True(t, cfg.Watch)
	assert.Equal(t, "git status", cfg.Aliases["gs"])
	assert.NotNil(t, cfg.Env)
}

func TestLoad_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "FOO=from-file\nBAR=bar\n")
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
env_files = [".env"]

[env]
FOO = "from-config"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-config", cfg.Env["FOO"])
	assert.Equal(t, "bar", cfg.Env["BAR"])
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad extension", "config.json", "{}"},
		{"bad toml", "bad.toml", "prompt = "},
		{"bad yaml", "bad.yaml", "aliases: [1, 2"},
		{"negative history", "neg.toml", "history_size = -1"},
		{"relative root", "root.toml", `root = "relative"`},
		{"bad alias", "alias.toml", "[aliases]\n\"a b\" = \"ls\""},
		{"bad env", "env.toml", "[env]\n\"1X\" = \"v\""},
		{"missing env file", "envf.toml", `env_files = ["nope.env"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestValidateVariableName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"HOME", false},
		{"_private", false},
		{"a1", false},
		{"", true},
		{"1abc", true},
		{"with-dash", true},
		{"with space", true},
	}
	for _, tt := range tests {
		err := ValidateVariableName(tt.name)
		assert.Equal(t, tt.wantErr, err != nil, "ValidateVariableName(%q) = %v", tt.name, err)
	}
}

func TestValidateAliasName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"ll", false},
		{"git-st", false},
		{"..", true},
		{"", true},
		{"a|b", true},
		{"a b", true},
	}
	for _, tt := range tests {
		err := ValidateAliasName(tt.name)
		assert.Equal(t, tt.wantErr, err != nil, "ValidateAliasName(%q) = %v", tt.name, err)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `prompt = "one"`)

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c })
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.toml"), `prompt = "ignored"`)
	writeFile(t, path, `prompt = "two"`)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			assert.NotEqual(t, "ignored", cfg.Prompt)
			if cfg.Prompt != "two" {
				continue
			}
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
		break
	}

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop(), "Stop is idempotent")
}
