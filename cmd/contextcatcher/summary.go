package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/contextcatcher/internal/app"
)

func newSummaryCmd(flags *globalFlags) *cobra.Command {
	var (
		count  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Digest the most recent messages",
		Long:  "Summarizes the most recent stored messages and extracts action items. Uses the LLM backend when enabled, falling back to the built-in heuristic.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Summary(commandContext(cmd), count)
			if err != nil {
				return fmt.Errorf("summarizing: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			formatSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", app.DefaultSummaryLimit,
		fmt.Sprintf("number of recent messages to digest (max %d)", app.MaxSummaryLimit))
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show last fetch time and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.Status(commandContext(cmd))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			formatStatus(cmd.OutOrStdout(), st, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}
