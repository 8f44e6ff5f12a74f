package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/contextcatcher/internal/model"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalFlags are shared by every subcommand through persistent flags.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:          "contextcatcher",
		Short:        "ContextCatcher: mailbox ingestion and digests",
		Long:         "ContextCatcher pulls recent mail over IMAP into a local thread-aware index and summarizes it.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", model.DefaultConfigPath(), "path to config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newFetchCmd(flags))
	cmd.AddCommand(newMessagesCmd(flags))
	cmd.AddCommand(newThreadCmd(flags))
	cmd.AddCommand(newSummaryCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newWatchCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "contextcatcher %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
