// Package cmd defines and implements the CLI commands for the jobscraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/app"
	"github.com/JakeFAU/realtime-job-scraper/internal/config"
	"github.com/JakeFAU/realtime-job-scraper/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/logging"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

const closeTimeout = 30 * time.Second

// envKey is the key for storing the command environment in the context.
type envKey struct{}

// App defines the application services the commands use. It lets tests
// inject a fake in place of *app.App.
type App interface {
	Logger() *zap.Logger
	Emitter() events.Emitter
	Runs() scraper.RunStore
	Clock() scraper.Clock
	SessionRunner(ctx context.Context, runID string, emitter events.Emitter) (dispatcher.Runner, error)
	RunConfigured(ctx context.Context) error
	Close(ctx context.Context) error
}

// env is what PersistentPreRunE hands to subcommands.
type env struct {
	cfg config.Config
	app App
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "jobscraper",
		Short: "Scrapes LinkedIn guest job listings through automated browser sessions.",
		Long: `jobscraper runs batches of job queries against LinkedIn's public job pages.
Each batch gets its own browser session; records, metrics and errors are
streamed to the configured sinks (logs, Prometheus, Postgres, archives,
Pub/Sub or Redis, CSV).`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, app: appInstance}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newScrapeCmd(), newServeCmd(), newScheduleCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// withEnv resolves the environment for run and always closes the application
// services afterwards, also when run fails.
func withEnv(run func(cmd *cobra.Command, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		e, err := resolveEnv(cmd.Context())
		if err != nil {
			return err
		}
		runErr := run(cmd, e)

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		closeErr := e.app.Close(ctx)
		_ = e.app.Logger().Sync()
		if closeErr != nil {
			closeErr = fmt.Errorf("close application services: %w", closeErr)
		}
		return errors.Join(runErr, closeErr)
	}
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey{}).(*env)
	if !ok || e == nil || e.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return e, nil
}
