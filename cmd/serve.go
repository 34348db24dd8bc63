package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/api"
	"github.com/JakeFAU/realtime-job-scraper/internal/id/uuid"
)

const shutdownTimeout = 15 * time.Second

// newServeCmd starts the HTTP API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the runs API",
		Long: `Starts the HTTP API. Each POST /v1/runs opens its own session; run state
is tracked in the run store and every event is forwarded to the configured sinks.`,
		RunE: withEnv(runServeCommand),
	}
}

func runServeCommand(cmd *cobra.Command, e *env) error {
	logger := e.app.Logger()
	apiServer := api.NewServer(
		e.app.Runs(),
		e.app.SessionRunner,
		uuid.New("run-"),
		e.app.Clock(),
		e.cfg,
		logger.Named("api"),
		api.WithForward(e.app.Emitter()),
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", e.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serve(cmd.Context(), srv, apiServer, logger)
}

func serve(ctx context.Context, srv *http.Server, apiServer *api.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err, ok := <-errCh:
		if ok {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("run shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return serveErr
}
