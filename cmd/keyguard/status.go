package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded keystroke state of the current session",
	Long: `Status fetches GET /keystroke/report, the summary shown in the pre-submit
confirmation dialog: the last recorded code and whether a paste was recorded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		session, err := newClient().SessionReport(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch keystroke report: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "paste recorded: %t\n", session.Paste)
		if showCode, _ := cmd.Flags().GetBool("code"); showCode {
			fmt.Fprintf(out, "code:\n%s\n", session.Code)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the server-side keystroke cache after submission",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		msg, err := newClient().Clear(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear keystrokes: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var pastesCmd = &cobra.Command{
	Use:   "pastes",
	Short: "List the pastes recorded for the current user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		limit, _ := cmd.Flags().GetInt("limit")
		pasteLog, err := newClient().PasteLog(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to fetch paste log: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "recorded pastes: %d (showing %d)\n", pasteLog.Total, len(pasteLog.Pastes))
		for _, p := range pasteLog.Pastes {
			fmt.Fprintf(out, "%s  %-9s %-10s %d chars\n",
				p.DetectedAt.Local().Format(time.DateTime), p.Source, p.Language, len([]rune(p.Inserted)))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("code", false, "print the recorded code")
	pastesCmd.Flags().Int("limit", 0, "maximum number of pastes to list (server default when 0)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(pastesCmd)
}
