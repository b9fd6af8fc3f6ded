package commands

import (
	"errors"
	"log/slog"

	"carebook/internal/components/chrono"
	"carebook/internal/components/runlock"
	"carebook/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var scheduleOptions runFlags

func init() {
	scheduleCmd.Flags().StringVarP(&scheduleOptions.service, "service", "s", "", "Only the service whose name matches best.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Stays in the foreground and runs every phase on the configured cron schedule.",
	Run: func(cmd *cobra.Command, args []string) {
		timeAPI, err := chrono.NewStandardTime(config.Timezone)
		if err != nil {
			fatal("invalid timezone", err)
		}
		tel := telemetry.SlogAPI{}
		cron := chrono.NewStandardCron(tel, timeAPI.Location())
		defer cron.Stop()

		ctx := cmd.Context()
		err = cron.Cron(config.Schedule, func() {
			err := runOnce(ctx, nil, scheduleOptions)
			if errors.Is(err, runlock.ErrLocked) {
				slog.Warn("skipping scheduled run", "err", err.Error())
				return
			}
			if err != nil {
				tel.ReportBroken("schedule.run", err)
			}
		})
		if err != nil {
			fatal("invalid schedule", err)
		}

		slog.Info("waiting for scheduled runs", "schedule", config.Schedule, "timezone", config.Timezone)
		<-ctx.Done()
	},
}
