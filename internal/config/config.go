package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// nameRegex validates variable names.
var nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// aliasRegex validates alias names. Aliases may contain dashes and dots but
// nothing the parser treats specially.
var aliasRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.:+-]{0,63}$`)

// ValidateVariableName checks if a variable name is valid.
func ValidateVariableName(name string) error {
	if name == "" {
		return fmt.Errorf("variable name cannot be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid variable name %q: must start with a letter or underscore and contain only letters, digits, or underscores", name)
	}
	return nil
}

// ValidateAliasName checks if an alias name is valid.
func ValidateAliasName(name string) error {
	if name == "" {
		return fmt.Errorf("alias name cannot be empty")
	}
	if !aliasRegex.MatchString(name) {
		return fmt.Errorf("invalid alias name %q", name)
	}
	return nil
}

const (
	AppName             = "shellcore"
	DefaultPrompt       = "{user}@{host}:{cwd}{git}$ "
	DefaultHistorySize  = 1024
	DefaultDirStackSize = 16
)

// Config is the rc configuration of a shell.
type Config struct {
	Prompt       string            `toml:"prompt" yaml:"prompt"`
	HistoryFile  string            `toml:"history_file" yaml:"history_file"`
	HistorySize  int               `toml:"history_size" yaml:"history_size"`
	DirStackSize int               `toml:"dir_stack_size" yaml:"dir_stack_size"`
	Root         string            `toml:"root" yaml:"root"` // Restricts cd to this directory tree
	Aliases      map[string]string `toml:"aliases" yaml:"aliases"`
	Env          map[string]string `toml:"env" yaml:"env"`
	EnvFiles     []string          `toml:"env_files" yaml:"env_files"`
	RC           string            `toml:"rc" yaml:"rc"` // Script sourced at startup
	AuditDir     string            `toml:"audit_dir" yaml:"audit_dir"`
	MetricsAddr  string            `toml:"metrics_addr" yaml:"metrics_addr"`
	Watch        bool              `toml:"watch" yaml:"watch"`
	Verbose      bool              `toml:"verbose" yaml:"verbose"` // Debug logging, as with -v

	// Path of the file the configuration was loaded from, if any.
	Path string `toml:"-" yaml:"-"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Prompt:       DefaultPrompt,
		HistorySize:  DefaultHistorySize,
		DirStackSize: DefaultDirStackSize,
		Aliases:      map[string]string{},
		Env:          map[string]string{},
	}
}

// Validate checks that the Config is valid.
func (c *Config) Validate() error {
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative (got %d)", c.HistorySize)
	}
	if c.DirStackSize < 0 {
		return fmt.Errorf("dir_stack_size must not be negative (got %d)", c.DirStackSize)
	}
	if c.Root != "" && !filepath.IsAbs(c.Root) {
		return fmt.Errorf("root must be an absolute path (got %q)", c.Root)
	}
	for name := range c.Aliases {
		if err := ValidateAliasName(name); err != nil {
			return err
		}
	}
	for key := range c.Env {
		if err := ValidateVariableName(key); err != nil {
			return fmt.Errorf("env: %w", err)
		}
	}
	return nil
}

// Load reads a configuration file. The format is chosen by extension:
// .toml, or .yaml/.yml. Relative paths inside the file are resolved against
// the file's directory, and env_files are merged into Env.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
	cfg.Path = path

	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	if cfg.Env == nil {
		cfg.Env = map[string]string{}
	}

	base := filepath.Dir(path)
	cfg.HistoryFile = resolve(base, cfg.HistoryFile)
	cfg.RC = resolve(base, cfg.RC)
	cfg.AuditDir = resolve(base, cfg.AuditDir)
	for i, f := range cfg.EnvFiles {
		cfg.EnvFiles[i] = resolve(base, f)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := cfg.LoadEnvFiles(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles merges the variables of every env file into Env. Variables
// set directly in Env win over the files.
func (c *Config) LoadEnvFiles(extra ...string) error {
	files := append(append([]string(nil), c.EnvFiles...), extra...)
	if len(files) == 0 {
		return nil
	}
	vars, err := godotenv.Read(files...)
	if err != nil {
		return fmt.Errorf("failed to read env files: %w", err)
	}
	if c.Env == nil {
		c.Env = map[string]string{}
	}
	for key, value := range vars {
		if _, set := c.Env[key]; set {
			continue
		}
		if err := ValidateVariableName(key); err != nil {
			return fmt.Errorf("env file: %w", err)
		}
		c.Env[key] = value
	}
	return nil
}

func resolve(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Paths holds the configured paths
type Paths struct {
	ConfigDir string
	StateDir  string
}

// DefaultPaths returns the XDG based path configuration
func DefaultPaths() *Paths {
	home, _ := os.UserHomeDir()

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}

	return &Paths{
		ConfigDir: filepath.Join(configHome, AppName),
		StateDir:  filepath.Join(stateHome, AppName),
	}
}

// ConfigFile returns the first existing config file in ConfigDir, or "".
func (p *Paths) ConfigFile() string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		path := filepath.Join(p.ConfigDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// HistoryDB returns the default history database path.
func (p *Paths) HistoryDB() string {
	return filepath.Join(p.StateDir, "history.db")
}

// AuditDir returns the default audit log directory.
func (p *Paths) AuditDir() string {
	return filepath.Join(p.StateDir, "audit")
}

// LoadDefault loads the config file found in paths, or Default when there
// is none.
func LoadDefault(paths *Paths) (*Config, error) {
	if path := paths.ConfigFile(); path != "" {
		return Load(path)
	}
	return Default(), nil
}
