package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/catalog-post-automation/internal/config"
	"github.com/fpang/catalog-post-automation/internal/lambdaboot"
	"github.com/fpang/catalog-post-automation/internal/scheduler"
)

var (
	timezoneFlag string
	runTimeout   time.Duration
	nowFlags     []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run every flow on its configured cron schedule",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		app := mustBoot(ctx)

		loc, err := time.LoadLocation(timezoneFlag)
		if err != nil {
			log.Fatal().Err(err).Str("timezone", timezoneFlag).Msg("Unknown timezone")
		}
		s := scheduler.New(config.CronParser, scheduler.WithLocation(loc), scheduler.WithRunTimeout(runTimeout))
		for _, flow := range lambdaboot.Flows {
			err := s.Add(scheduler.Job{
				Name: flow,
				Spec: app.Schedule(flow),
				Run: func(ctx context.Context) error {
					_, err := app.RunFlow(ctx, flow)
					return err
				},
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to schedule flow")
			}
		}

		for _, flow := range nowFlags {
			if err := s.RunNow(ctx, flow); err != nil {
				log.Error().Err(err).Str("flow", flow).Msg("Startup run failed")
			}
		}

		s.Start()
		<-ctx.Done()

		stopCtx, stop := context.WithTimeout(context.Background(), runTimeout)
		defer stop()
		s.Stop(stopCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&timezoneFlag, "timezone", "Europe/Berlin", "Timezone of the cron schedules")
	serveCmd.Flags().StringSliceVar(&nowFlags, "now", nil, "Flows to run once before the schedule starts (e.g. publish,recipe)")
	serveCmd.Flags().DurationVar(&runTimeout, "run-timeout", scheduler.DefaultRunTimeout, "Maximum duration of one run")
	rootCmd.AddCommand(serveCmd)
}
