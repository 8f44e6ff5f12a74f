package main

import (
	"github.com/spf13/cobra"

	"github.com/nhle/contextcatcher/internal/app"
)

func newFetchCmd(flags *globalFlags) *cobra.Command {
	var (
		sinceHours int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one fetch cycle",
		Long:  "Connects to the mailbox, pulls messages from the lookback window and stores the new ones. Per-message failures are reported, not fatal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, flags, sinceHours, asJSON)
		},
	}

	cmd.Flags().IntVar(&sinceHours, "since-hours", 0, "override the configured lookback window, in hours")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runFetch(cmd *cobra.Command, flags *globalFlags, sinceHours int, asJSON bool) error {
	a, _, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Fetch(commandContext(cmd), app.FetchOptions{SinceHours: sinceHours})
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	formatFetchResult(cmd.OutOrStdout(), res)
	return nil
}
