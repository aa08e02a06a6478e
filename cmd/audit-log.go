package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/shellcore/internal/app"
)

var auditLogCmd = &cobra.Command{
	Use:   "audit-log [session]",
	Short: "Display the audit trail of a session",
	Long: `Displays the events recorded for a session: commands, started and
exited processes and failures. Without a session the recorded sessions are
listed.

Auditing is enabled by setting audit_dir in the rc file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditLog,
}

var auditLogJSON bool

func init() {
	auditLogCmd.Flags().BoolVar(&auditLogJSON, "json-lines", false, "Output events as JSON lines")
	rootCmd.AddCommand(auditLogCmd)
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	auditLogger := app.Default.AuditLogger()
	if auditLogger == nil {
		logInfo("Auditing is disabled. Set audit_dir in %s to enable it", rcFile())
		return nil
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		sessions, err := auditLogger.Sessions()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			logInfo("No sessions recorded")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintln(out, s)
		}
		return nil
	}

	session := args[0]
	events, err := auditLogger.Events(session)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		logInfo("No events found for session %s", session)
		return nil
	}

	for _, e := range events {
		if auditLogJSON {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		line := fmt.Sprintf("[%s] %-13s", ts, e.Type)
		if e.Command != "" {
			line += " " + e.Command
		}
		if e.ExitCode != nil {
			line += fmt.Sprintf(" rc=%d", *e.ExitCode)
		}
		if e.Details != "" {
			line += " (" + e.Details + ")"
		}
		fmt.Fprintln(out, line)
	}

	return nil
}

// rcFile names the rc file for messages.
func rcFile() string {
	if path := paths().ConfigFile(); path != "" {
		return path
	}
	return "the rc file"
}
