package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/contextcatcher/internal/app"
)

func newMessagesCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		offset int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List stored messages, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.Messages(commandContext(cmd), limit, offset)
			if err != nil {
				return fmt.Errorf("listing messages: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			formatMessages(cmd.OutOrStdout(), page)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", app.DefaultMessageLimit,
		fmt.Sprintf("messages per page (max %d)", app.MaxMessageLimit))
	cmd.Flags().IntVar(&offset, "offset", 0, "number of messages to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the page as JSON")
	return cmd
}

func newThreadCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "thread <thread-id>",
		Short: "Show every stored message in a thread, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.Thread(commandContext(cmd), args[0])
			if errors.Is(err, app.ErrThreadNotFound) {
				return fmt.Errorf("thread %q not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("loading thread: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			formatThread(cmd.OutOrStdout(), view)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the thread as JSON")
	return cmd
}
