// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/config"
	"github.com/JakeFAU/realtime-job-scraper/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-job-scraper/internal/observers"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

const (
	defaultRequestTimeout = 60 * time.Second
	storeTimeout          = 10 * time.Second
)

var (
	errRunCancelled = errors.New("cancelled via API")
	errShuttingDown = errors.New("server shutting down")
)

// RunFactory opens a fresh session-backed runner for one submitted run. The
// runner must stamp its events with runID and emit them to emitter.
type RunFactory func(ctx context.Context, runID string, emitter events.Emitter) (dispatcher.Runner, error)

// Server wires HTTP handlers to the run store and the session factory.
type Server struct {
	router  chi.Router
	runs    scraper.RunStore
	factory RunFactory
	idGen   scraper.IDGenerator
	clock   scraper.Clock
	cfg     config.Config
	forward events.Emitter
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]dispatcher.Runner
	// cancelled holds runs cancelled while their session was still opening.
	cancelled map[string]struct{}
	wg       sync.WaitGroup
	baseCtx  context.Context
	shutdown context.CancelFunc
	stopping bool
}

// Option customizes a Server.
type Option func(*Server)

// WithForward mirrors every run event to emitter, typically an events.Hub
// carrying the process-wide sinks.
func WithForward(emitter events.Emitter) Option {
	return func(s *Server) { s.forward = emitter }
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs scraper.RunStore,
	factory RunFactory,
	idGen scraper.IDGenerator,
	clock scraper.Clock,
	cfg config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runs:     runs,
		factory:  factory,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		active:    make(map[string]dispatcher.Runner),
		cancelled: make(map[string]struct{}),
		baseCtx:  ctx,
		shutdown: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/jobs", s.getRunJobs)
				r.Post("/cancel", s.cancelRun)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown stops accepting runs, closes every active session and waits for
// their runs to be finalized or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	runners := make([]dispatcher.Runner, 0, len(s.active))
	for _, runner := range s.active {
		runners = append(runners, runner)
	}
	s.mu.Unlock()

	s.shutdown()
	for _, runner := range runners {
		if err := runner.Close(); err != nil {
			s.logger.Warn("close session on shutdown", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type runRequest struct {
	Queries []config.QueryConfig  `json:"queries"`
	Options *config.OptionsConfig `json:"options"`
}

type runResponse struct {
	RunID  string            `json:"run_id"`
	Status scraper.RunStatus `json:"status"`
}

type jobsResponse struct {
	RunID string              `json:"run_id"`
	Jobs  []scraper.JobRecord `json:"jobs"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	queries, global, err := s.toRunInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate run id")
		return
	}
	names := make([]string, len(queries))
	for i, q := range queries {
		names[i] = q.Query
	}
	run := scraper.Run{
		ID:        runID,
		Status:    scraper.RunStatusQueued,
		Queries:   names,
		CreatedAt: s.clock.Now(),
	}
	if err := s.runs.CreateRun(r.Context(), run); err != nil {
		s.logger.Error("create run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create run")
		return
	}
	if !s.start(runID, queries, global) {
		s.finish(runID, scraper.RunStatusCancelled, errShuttingDown.Error())
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{RunID: runID, Status: scraper.RunStatusQueued})
}

// toRunInput converts and validates the request. Request options replace the
// configured global options entirely when present.
func (s *Server) toRunInput(req runRequest) ([]scraper.QuerySpec, scraper.Options, error) {
	if len(req.Queries) == 0 {
		return nil, scraper.Options{}, errors.New("at least one query required")
	}
	globalCfg := s.cfg.GlobalOptions
	if req.Options != nil {
		globalCfg = *req.Options
	}
	global, err := globalCfg.ToOptions()
	if err != nil {
		return nil, scraper.Options{}, fmt.Errorf("options: %w", err)
	}
	queries := make([]scraper.QuerySpec, 0, len(req.Queries))
	for i, q := range req.Queries {
		spec, err := q.ToQuerySpec()
		if err != nil {
			return nil, scraper.Options{}, fmt.Errorf("queries[%d]: %w", i, err)
		}
		if _, err := scraper.ResolveQuery(global, spec); err != nil {
			return nil, scraper.Options{}, fmt.Errorf("queries[%d]: %w", i, err)
		}
		queries = append(queries, spec)
	}
	return queries, global, nil
}

// start launches the run in the background. It reports false once Shutdown began.
func (s *Server) start(runID string, queries []scraper.QuerySpec, global scraper.Options) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(runID, queries, global)
	}()
	return true
}

func (s *Server) execute(runID string, queries []scraper.QuerySpec, global scraper.Options) {
	logger := s.logger.With(zap.String("run_id", runID))
	ctx := s.baseCtx
	if s.cfg.Server.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.RunTimeout)
		defer cancel()
	}

	bus := events.NewBus(logger)
	sink := observers.NewRunSink(s.runs)
	bus.OnAll(func(evt events.Event) {
		storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := sink.Consume(storeCtx, []events.Event{evt}); err != nil {
			logger.Warn("record run event failed", zap.Error(err))
		}
	})
	if s.forward != nil {
		bus.OnAll(s.forward.Emit)
	}

	if run, err := s.runs.GetRun(ctx, runID); err == nil && run.Status.Terminal() {
		logger.Info("run finished before start", zap.String("status", string(run.Status)))
		return
	}
	runner, err := s.factory(ctx, runID, bus)
	if err != nil {
		logger.Error("open session failed", zap.Error(err))
		s.untrack(runID)
		s.finish(runID, scraper.RunStatusFailed, err.Error())
		return
	}
	if err := s.track(runID, runner); err != nil {
		logger.Info("run not started", zap.Error(err))
		closeRunner(logger, runner)
		s.finish(runID, scraper.RunStatusCancelled, err.Error())
		return
	}
	defer func() {
		s.untrack(runID)
		closeRunner(logger, runner)
	}()

	if err := s.runs.MarkRunning(ctx, runID); err != nil {
		logger.Warn("mark run running failed", zap.Error(err))
	}
	start := time.Now()
	metrics.IncActiveSessions()
	runErr := runner.Run(ctx, queries, global)
	metrics.DecActiveSessions()

	status := runStatus(runErr)
	metrics.ObserveRun(string(status), time.Since(start))
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	s.finish(runID, status, errText)
}

func (s *Server) track(runID string, runner dispatcher.Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cancelled[runID]; ok {
		delete(s.cancelled, runID)
		return errRunCancelled
	}
	if s.stopping {
		return errShuttingDown
	}
	s.active[runID] = runner
	return nil
}

func (s *Server) untrack(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, runID)
	delete(s.cancelled, runID)
}

// claimCancel returns the active runner of runID, or marks runID so that a
// session still being opened for it is never started.
func (s *Server) claimCancel(runID string) (dispatcher.Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runner, ok := s.active[runID]; ok {
		return runner, true
	}
	s.cancelled[runID] = struct{}{}
	return nil, false
}

func (s *Server) lookup(runID string) (dispatcher.Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runner, ok := s.active[runID]
	return runner, ok
}

func (s *Server) finish(runID string, status scraper.RunStatus, errText string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.runs.FinishRun(ctx, runID, status, errText); err != nil {
		s.logger.Warn("finish run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) getRunJobs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	jobs, err := s.runs.ListJobs(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []scraper.JobRecord{}
	}
	writeJSON(w, http.StatusOK, jobsResponse{RunID: runID, Jobs: jobs})
}

// cancelRun closes the run's session; the in-flight Run then ends as cancelled.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if runner, ok := s.lookup(runID); ok {
		s.closeActive(runID, runner)
		writeJSON(w, http.StatusAccepted, runResponse{RunID: runID, Status: scraper.RunStatusCancelled})
		return
	}
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if run.Status.Terminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("run already %s", run.Status))
		return
	}
	if runner, ok := s.claimCancel(runID); ok {
		s.closeActive(runID, runner)
	} else {
		// Queued, or its session is still being opened.
		s.finish(runID, scraper.RunStatusCancelled, errRunCancelled.Error())
	}
	writeJSON(w, http.StatusAccepted, runResponse{RunID: runID, Status: scraper.RunStatusCancelled})
}

func (s *Server) closeActive(runID string, runner dispatcher.Runner) {
	if err := runner.Close(); err != nil {
		s.logger.Warn("close session failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func runStatus(err error) scraper.RunStatus {
	switch {
	case err == nil:
		return scraper.RunStatusSucceeded
	case errors.Is(err, scraper.ErrSessionClosed), errors.Is(err, context.Canceled):
		return scraper.RunStatusCancelled
	default:
		return scraper.RunStatusFailed
	}
}

func closeRunner(logger *zap.Logger, runner dispatcher.Runner) {
	if err := runner.Close(); err != nil {
		logger.Warn("close session failed", zap.Error(err))
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, scraper.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
