package shell

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/firefly-engineering/shellcore/internal/audit"
	"github.com/firefly-engineering/shellcore/internal/config"
	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
	"github.com/firefly-engineering/shellcore/internal/expr"
	"github.com/firefly-engineering/shellcore/internal/history"
	"github.com/firefly-engineering/shellcore/internal/logging"
	"github.com/firefly-engineering/shellcore/internal/metrics"
	"github.com/firefly-engineering/shellcore/internal/parser"
	"github.com/firefly-engineering/shellcore/internal/stream"
	"github.com/firefly-engineering/shellcore/internal/system"
	"github.com/firefly-engineering/shellcore/internal/task"
)

// State is the lifecycle state of a Core.
type State int32

const (
	Idle State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Core holds the state of one shell session.
type Core struct {
	mu        sync.RWMutex
	storage   map[string]string
	environ   map[string]string
	aliases   map[string]string
	functions map[string]*expr.Expression
	dirs      []string
	dirsSize  int
	wrkdir    string
	home      string
	root      string
	prompt    string
	exitCode  uint8

	state atomic.Int32

	// inputClosed is set when the user signals end of input. It stays set:
	// later processes start with stdin at EOF and read fails at once.
	inputClosed atomic.Bool

	// backlog holds user input received while no process was running.
	// Only the goroutine running a command line touches it.
	backlog []stream.UserMessage

	history *history.History
	store   *history.Store
	entryID int64

	stream   *stream.ShellStream
	parser   parser.Parser
	fs       system.FileSystem
	executor system.CommandExecutor
	recorder metrics.Recorder
	audit    *audit.Logger
	observer task.Observer

	cfg     *config.Config
	session string
	name    string
	tick    time.Duration
	log     *slog.Logger
}

// Option configures a Core.
type Option func(*Core)

// WithConfig applies an rc configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Core) {
		c.cfg = cfg
	}
}

// WithHistoryStore persists history in store and preloads it.
func WithHistoryStore(store *history.Store) Option {
	return func(c *Core) {
		c.store = store
	}
}

// WithRecorder records metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Core) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithAudit writes the session's audit log.
func WithAudit(l *audit.Logger) Option {
	return func(c *Core) {
		c.audit = l
	}
}

// WithParser replaces the Bash parser.
func WithParser(p parser.Parser) Option {
	return func(c *Core) {
		c.parser = p
	}
}

// WithFileSystem replaces the file system used by builtins.
func WithFileSystem(fs system.FileSystem) Option {
	return func(c *Core) {
		c.fs = fs
	}
}

// WithExecutor replaces command lookup and process replacement.
func WithExecutor(e system.CommandExecutor) Option {
	return func(c *Core) {
		c.executor = e
	}
}

// WithWorkdir sets the initial working directory.
func WithWorkdir(dir string) Option {
	return func(c *Core) {
		c.wrkdir = dir
	}
}

// WithEnviron replaces the inherited environment (KEY=value entries).
func WithEnviron(env []string) Option {
	return func(c *Core) {
		c.environ = environMap(env)
	}
}

// WithSession sets the session id instead of a random one.
func WithSession(id string) Option {
	return func(c *Core) {
		c.session = id
	}
}

// WithName sets $0 outside of functions.
func WithName(name string) Option {
	return func(c *Core) {
		c.name = name
	}
}

// WithTick sets the polling interval used while processes run.
func WithTick(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.tick = d
		}
	}
}

// New creates a shell core talking to the user through s.
func New(s *stream.ShellStream, opts ...Option) (*Core, error) {
	c := &Core{
		storage:   map[string]string{},
		aliases:   map[string]string{},
		functions: map[string]*expr.Expression{},
		dirsSize:  config.DefaultDirStackSize,
		stream:    s,
		parser:    parser.Bash{},
		fs:        system.DefaultFS(),
		executor:  system.DefaultExecutor(),
		recorder:  metrics.NoopRecorder{},
		name:      config.AppName,
		tick:      10 * time.Millisecond,
		prompt:    config.DefaultPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.environ == nil {
		c.environ = environMap(os.Environ())
	}
	if c.session == "" {
		c.session = uuid.NewString()
	}
	c.log = logging.ForSession(c.session)

	if c.wrkdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, shellerrors.IOError("getwd", err)
		}
		c.wrkdir = wd
	}
	c.wrkdir = filepath.Clean(c.wrkdir)

	c.home = c.environ["HOME"]
	if c.home == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.home = home
		} else {
			c.home = "/"
		}
	}

	historySize := history.DefaultSize
	if c.cfg != nil {
		if c.cfg.HistorySize > 0 {
			historySize = c.cfg.HistorySize
		}
		if err := c.applyConfig(c.cfg); err != nil {
			return nil, err
		}
	}
	c.history = history.New(historySize)

	if c.root != "" {
		if !within(c.root, c.wrkdir) {
			c.wrkdir = c.root
		}
		if !within(c.root, c.home) {
			c.home = c.root
		}
	}
	c.environ["PWD"] = c.wrkdir

	if c.store != nil {
		lines, err := c.store.Commands(context.Background(), c.history.Size())
		if err != nil {
			return nil, err
		}
		c.history.Load(lines)
	}

	observers := task.Observers{metrics.TaskObserver{Recorder: c.recorder}}
	if c.audit != nil {
		observers = append(observers, c.audit.Observer(c.session))
		c.auditEvent(audit.Event{Type: audit.EventSessionStart, Details: c.wrkdir})
	}
	c.observer = observers

	c.log.Debug("shell session started", "wrkdir", c.wrkdir, "root", c.root)
	return c, nil
}

func environMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			m[key] = value
		}
	}
	return m
}

// applyConfig copies the settings of cfg into the core. Callers hold mu or
// own the core exclusively.
func (c *Core) applyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return shellerrors.ConfigError("invalid configuration", err)
	}
	if cfg.Prompt != "" {
		c.prompt = cfg.Prompt
	}
	if cfg.DirStackSize > 0 {
		c.dirsSize = cfg.DirStackSize
		if len(c.dirs) > c.dirsSize {
			c.dirs = c.dirs[:c.dirsSize]
		}
	}
	if cfg.Root != "" {
		c.root = filepath.Clean(cfg.Root)
	}
	for name, command := range cfg.Aliases {
		c.aliases[name] = command
	}
	for key, value := range cfg.Env {
		c.environ[key] = value
	}
	c.cfg = cfg
	return nil
}

// Reload applies a new configuration to a live session. Aliases and
// variables defined in the session are kept unless cfg overrides them.
func (c *Core) Reload(cfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	root := c.root
	if err := c.applyConfig(cfg); err != nil {
		return err
	}
	// The confinement of a running session never changes.
	c.root = root
	c.log.Info("configuration reloaded", "aliases", len(cfg.Aliases), "env", len(cfg.Env))
	return nil
}

// Session returns the session id.
func (c *Core) Session() string {
	return c.session
}

// Prompt returns the prompt template.
func (c *Core) Prompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompt
}

// State returns the lifecycle state.
func (c *Core) State() State {
	return State(c.state.Load())
}

// ExitCode returns the exit code of the last command.
func (c *Core) ExitCode() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exitCode
}

func (c *Core) setExitCode(rc uint8) {
	c.mu.Lock()
	c.exitCode = rc
	c.mu.Unlock()
}

// Exit terminates the session with code.
func (c *Core) Exit(code uint8) {
	c.setExitCode(code)
	if State(c.state.Swap(int32(Terminated))) != Terminated {
		code := int(code)
		c.auditEvent(audit.Event{Type: audit.EventSessionEnd, ExitCode: &code})
		c.log.Debug("shell session terminated", "rc", code)
	}
}

// Wrkdir returns the working directory.
func (c *Core) Wrkdir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wrkdir
}

// Home returns the home directory.
func (c *Core) Home() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.home
}

// AliasSet defines or replaces an alias.
func (c *Core) AliasSet(name, command string) error {
	if err := config.ValidateAliasName(name); err != nil {
		return shellerrors.BadValue(err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[name] = command
	return nil
}

// AliasGet returns the command of an alias.
func (c *Core) AliasGet(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	command, ok := c.aliases[name]
	return command, ok
}

// AliasUnset removes an alias and reports whether it existed.
func (c *Core) AliasUnset(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.aliases[name]
	delete(c.aliases, name)
	return ok
}

// Aliases returns a copy of every alias.
func (c *Core) Aliases() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}

// StorageSet sets a session variable. Session variables are not passed to
// processes.
func (c *Core) StorageSet(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage[key] = value
}

// EnvironSet sets an environment variable of the processes the session runs.
func (c *Core) EnvironSet(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.environ[key] = value
}

// ValueGet looks key up in the session storage, then in the environment.
func (c *Core) ValueGet(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.storage[key]; ok {
		return v, true
	}
	v, ok := c.environ[key]
	return v, ok
}

// ValueUnset removes key from the storage and the environment.
func (c *Core) ValueUnset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.storage, key)
	delete(c.environ, key)
}

func (c *Core) storageUnset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.storage, key)
}

// Environ returns the environment as sorted KEY=value entries.
func (c *Core) Environ() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	env := make([]string, 0, len(c.environ))
	for k, v := range c.environ {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// FunctionSet defines or replaces a function.
func (c *Core) FunctionSet(name string, body *expr.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions[name] = body
}

// FunctionGet returns the body of a function.
func (c *Core) FunctionGet(name string) (*expr.Expression, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	body, ok := c.functions[name]
	return body, ok
}

// HistoryAt returns a recorded command line (see history.History.At).
func (c *Core) HistoryAt(index int) (string, error) {
	line, ok := c.history.At(index)
	if !ok {
		return "", shellerrors.OutOfHistoryRange(index)
	}
	return line, nil
}

// History returns the recorded command lines, oldest first.
func (c *Core) History() []string {
	return c.history.Entries()
}

func (c *Core) recordHistory(line string) {
	if !c.history.Push(line) || c.store == nil {
		c.entryID = 0
		return
	}
	id, err := c.store.Append(context.Background(), c.session, strings.TrimRight(line, "\n"))
	if err != nil {
		c.log.Warn("history store append failed", "error", err)
		c.entryID = 0
		return
	}
	c.entryID = id
}

func (c *Core) recordExitCode(rc uint8) {
	if c.store == nil || c.entryID == 0 {
		return
	}
	if err := c.store.UpdateExitCode(context.Background(), c.entryID, rc); err != nil {
		c.log.Warn("history store update failed", "error", err)
	}
	c.entryID = 0
}

// resolvePath makes path absolute against the working directory, confining
// it to the restricted root when one is configured.
func (c *Core) resolvePath(path string) (string, error) {
	c.mu.RLock()
	wrkdir, root := c.wrkdir, c.root
	c.mu.RUnlock()

	if root == "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(wrkdir, path)
		}
		return filepath.Clean(path), nil
	}

	if filepath.IsAbs(path) {
		if within(root, path) {
			rel, _ := filepath.Rel(root, path)
			path = rel
		}
	} else {
		rel, _ := filepath.Rel(root, wrkdir)
		path = filepath.Join(rel, path)
	}
	resolved, err := securejoin.SecureJoin(root, path)
	if err != nil {
		return "", shellerrors.NoSuchFileOrDirectory(path)
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, "../")
}

// ChangeDirectory enters path. An empty path means home and "-" means the
// previous directory.
func (c *Core) ChangeDirectory(path string) error {
	switch path {
	case "":
		path = c.Home()
	case "-":
		prev, ok := c.ValueGet("OLDPWD")
		if !ok || prev == "" {
			return shellerrors.New(shellerrors.ExitGeneralError, "OLDPWD not set")
		}
		path = prev
	}

	target, err := c.resolvePath(path)
	if err != nil {
		return err
	}
	info, err := c.fs.Stat(target)
	if err != nil {
		if os.IsPermission(err) {
			return shellerrors.PermissionDenied(path)
		}
		return shellerrors.NoSuchFileOrDirectory(path)
	}
	if !info.IsDir() {
		return shellerrors.NotADirectory(path)
	}
	if err := unix.Access(target, unix.X_OK); err != nil && c.fs == system.DefaultFS() {
		return shellerrors.PermissionDenied(path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.environ["OLDPWD"] = c.wrkdir
	c.environ["PWD"] = target
	c.wrkdir = target
	return nil
}

// Dirs returns the working directory followed by the directory stack.
func (c *Core) Dirs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{c.wrkdir}, c.dirs...)
}

// Pushd enters path and pushes the previous directory on the stack. The
// bottom of a full stack is dropped.
func (c *Core) Pushd(path string) error {
	prev := c.Wrkdir()
	if err := c.ChangeDirectory(path); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs = append([]string{prev}, c.dirs...)
	if len(c.dirs) > c.dirsSize {
		c.dirs = c.dirs[:c.dirsSize]
	}
	return nil
}

// PopdFront removes the top of the stack and enters it.
func (c *Core) PopdFront() error {
	c.mu.RLock()
	if len(c.dirs) == 0 {
		c.mu.RUnlock()
		return shellerrors.DirStackEmpty()
	}
	top := c.dirs[0]
	c.mu.RUnlock()

	if err := c.ChangeDirectory(top); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs = c.dirs[1:]
	return nil
}

// PopdBack removes the bottom of the stack.
func (c *Core) PopdBack() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.dirs) == 0 {
		return shellerrors.DirStackEmpty()
	}
	c.dirs = c.dirs[:len(c.dirs)-1]
	return nil
}

func (c *Core) send(msg stream.ShellMessage) {
	if c.stream == nil {
		return
	}
	if !c.stream.Send(msg) {
		c.log.Debug("stream closed, message dropped", "message", fmt.Sprintf("%T", msg))
	}
}

func (c *Core) auditEvent(event audit.Event) {
	if c.audit == nil {
		return
	}
	event.Session = c.session
	if err := c.audit.Log(event); err != nil {
		c.log.Warn("audit log write failed", "error", err)
	}
}
