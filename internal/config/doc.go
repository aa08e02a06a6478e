// Package config provides the rc configuration of a shell session.
//
// # Configuration Files
//
// Configuration is read from $XDG_CONFIG_HOME/shellcore/config.toml, or
// config.yaml / config.yml in the same directory. The format is selected by
// the file extension:
//
//	prompt = "{user}@{host}:{cwd}{git}$ "
//	history_size = 2000
//	dir_stack_size = 16
//	root = "/srv/projects"
//	env_files = [".env"]
//	rc = "~/.shellcorerc"
//	watch = true
//	verbose = false
//
//	[aliases]
//	ll = "ls -l"
//
//	[env]
//	EDITOR = "vi"
//
// Relative paths are resolved against the directory containing the file.
// Variables from env_files are read with godotenv and never override a
// variable set under [env].
//
// # Paths
//
// DefaultPaths follows the XDG base directory layout:
//
//	$XDG_CONFIG_HOME/shellcore/   configuration
//	$XDG_STATE_HOME/shellcore/    history database and audit logs
//
// # Reloading
//
// When watch is enabled a Watcher observes the configuration file with
// fsnotify and hands every successfully parsed and validated Config to a
// callback. Bursts of writes are debounced. A file that fails to load is
// logged and the previous configuration stays in effect.
package config
