package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newScrapeCmd runs every configured session once and exits.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Runs the configured sessions once",
		Long: `Opens one browser session per entry under "sessions", runs their queries
concurrently (bounded by max_concurrent_sessions) and waits for all of them.
The command fails if any session failed.`,
		RunE: withEnv(runScrapeCommand),
	}
}

func runScrapeCommand(cmd *cobra.Command, e *env) error {
	if err := e.app.RunConfigured(cmd.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			e.app.Logger().Warn("scrape interrupted")
			return nil
		}
		return fmt.Errorf("scrape: %w", err)
	}
	e.app.Logger().Info("scrape command finished")
	return nil
}
