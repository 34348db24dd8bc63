package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/scheduler"
)

// newScheduleCmd runs the configured sessions on a cron schedule until interrupted.
func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Runs the configured sessions on a cron schedule",
		Long: `Runs the configured sessions every time schedule.spec fires (standard
five-field cron or descriptors such as "@every 6h"), and once at start when
schedule.run_on_start is set. A cycle still running when the next one is due
is not overlapped.`,
		RunE: withEnv(runScheduleCommand),
	}
}

func runScheduleCommand(cmd *cobra.Command, e *env) error {
	logger := e.app.Logger()
	sched, err := scheduler.New(scheduler.Config{
		Spec:       e.cfg.Schedule.Spec,
		RunOnStart: e.cfg.Schedule.RunOnStart,
	}, e.app.RunConfigured, logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if err := sched.Start(cmd.Context()); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info("scheduler started", zap.Time("next", sched.Next()))

	<-cmd.Context().Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	logger.Info("scheduler stopped")
	return nil
}
