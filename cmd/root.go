package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/shellcore/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool

	command     string
	configPath  string
	norc        bool
	historyFile string
	noHistory   bool
	metricsAddr string
	envFiles    []string
)

var rootCmd = &cobra.Command{
	Use:   "shellcore [flags] [script [args...]]",
	Short: "A small POSIX-like interactive shell",
	Long: `shellcore runs command lines with pipes, chains, redirections,
functions, loops and aliases.

Without arguments it starts an interactive session. With -c it runs one
command line, and with a script path it sources the script with the
remaining arguments as $1, $2, ...

The rc file is read from $XDG_CONFIG_HOME/shellcore/config.toml (or
config.yaml) unless --config or --norc is given.`,
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		return loadConfig()
	},
	RunE: runShell,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path of the rc file")
	rootCmd.PersistentFlags().BoolVar(&norc, "norc", false, "Do not read the rc file")
	rootCmd.PersistentFlags().StringVar(&historyFile, "history-file", "", "Path of the history database")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "Do not persist history")
	rootCmd.PersistentFlags().StringArrayVar(&envFiles, "env-file", nil, "Load variables from an env file (repeatable)")

	rootCmd.Flags().StringVarP(&command, "command", "c", "", "Run a single command line and exit")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
