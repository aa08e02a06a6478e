package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/shellcore/internal/app"
	"github.com/firefly-engineering/shellcore/internal/logging"
	"github.com/firefly-engineering/shellcore/internal/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the persisted command history",
	Long: `Lists the command lines recorded by every session, oldest first.

With --pick an interactive picker opens instead.

Use arrow keys or j/k to navigate, / to filter.

Actions:
  Enter  - Run the selected command
  p      - Print the selected command
  q/Esc  - Quit`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyPick  bool
	historyLimit int
)

func init() {
	historyCmd.Flags().BoolVar(&historyPick, "pick", false, "Pick a command interactively and run it")
	historyCmd.Flags().IntVarP(&historyLimit, "lines", "n", 50, "Number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a := app.Default
	defer func() { _ = a.Close() }()

	store, err := a.HistoryStore()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	if store == nil {
		logInfo("History is disabled")
		return nil
	}

	ctx := context.Background()
	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if !historyPick {
		fmt.Fprint(cmd.OutOrStdout(), tui.SimpleList(entries))
		return nil
	}

	logging.Debug("history picker started", "entries", len(entries))
	result, err := tui.RunPicker(entries)
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}
	logging.Debug("picker result", "action", result.Action)

	switch result.Action {
	case tui.ActionNone:
		logInfo("No history recorded")

	case tui.ActionPrint:
		fmt.Fprintln(cmd.OutOrStdout(), result.Entry.Command)

	case tui.ActionRun:
		return runPicked(ctx, cmd, a, result.Entry.Command)

	case tui.ActionQuit:
		// Just exit cleanly
	}
	return nil
}

// runPicked runs a command line picked from the history in a new session.
func runPicked(ctx context.Context, cmd *cobra.Command, a *app.App, line string) error {
	fmt.Fprintln(cmd.ErrOrStderr(), line)

	s, closeSession, err := openSession(cmd, a)
	if err != nil {
		return err
	}
	defer closeSession()

	rc, err := s.readline(ctx, line)
	return exitStatus(s.core, rc, incomplete(err))
}
