package cmd

import (
	"github.com/firefly-engineering/shellcore/internal/app"
	"github.com/firefly-engineering/shellcore/internal/config"
	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
	"github.com/firefly-engineering/shellcore/internal/logging"
)

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.Noticef
	logWarning = logging.Warningf
)

// paths returns the default paths configuration.
func paths() *config.Paths {
	return app.Default.Paths
}

// loadConfig loads the rc file into the default app and applies the
// command line overrides.
func loadConfig() error {
	a := app.Default
	if err := a.LoadConfig(configPath, norc); err != nil {
		return shellerrors.ConfigError("failed to load rc file", err)
	}
	cfg := a.Config

	if len(envFiles) > 0 {
		if err := cfg.LoadEnvFiles(envFiles...); err != nil {
			return shellerrors.ConfigError("failed to load env file", err)
		}
	}
	if historyFile != "" {
		cfg.HistoryFile = historyFile
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if noHistory {
		a.NoHistory = true
	}
	if cfg.Verbose {
		logging.SetVerbose(true)
	}

	logging.Debug("configuration loaded", "path", cfg.Path, "history", a.HistoryFile())
	return nil
}
