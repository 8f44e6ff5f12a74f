package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/contextcatcher/internal/app"
	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/sync"
	"github.com/nhle/contextcatcher/internal/theme"
)

const stopGrace = 30 * time.Second

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var (
		schedule string
		now      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Fetch on a schedule until interrupted",
		Long:  "Runs fetch cycles on a cron schedule (schedule.cron in the config, or --schedule). A cycle that is still running when the next one is due causes that tick to be skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags, schedule, now)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression or descriptor such as @every 5m (overrides schedule.cron)")
	cmd.Flags().BoolVar(&now, "now", false, "run one cycle immediately before waiting for the schedule")
	return cmd
}

func runWatch(cmd *cobra.Command, flags *globalFlags, schedule string, now bool) error {
	a, logger, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	if schedule == "" {
		schedule = a.Config().Schedule.Cron
	}

	out := cmd.OutOrStdout()
	report := func(res model.FetchResult) {
		fmt.Fprintf(out, "%s ", theme.MutedStyle.Render(res.Timestamp.Local().Format(timeLayout)))
		formatFetchResult(out, res)
	}

	poller, err := sync.NewPoller(a, schedule, a.Config().Fetch.Timeout(), logger.WithPrefix("poller"), report)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if now {
		report(a.Fetch(ctx, app.FetchOptions{}))
	}

	poller.Start()
	fmt.Fprintf(out, "Watching %q, next cycle %s (Ctrl+C to stop)\n",
		schedule, poller.Next().Local().Format(timeLayout))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	poller.Stop(stopCtx)

	fmt.Fprintln(out, "Stopped.")
	return nil
}
