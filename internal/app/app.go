// Package app initializes and holds long-lived application services, acting as a
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/clock/system"
	"github.com/JakeFAU/realtime-job-scraper/internal/config"
	"github.com/JakeFAU/realtime-job-scraper/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/export/csv"
	"github.com/JakeFAU/realtime-job-scraper/internal/extractor/linkedin"
	"github.com/JakeFAU/realtime-job-scraper/internal/hash/sha256"
	"github.com/JakeFAU/realtime-job-scraper/internal/id/uuid"
	"github.com/JakeFAU/realtime-job-scraper/internal/observers"
	"github.com/JakeFAU/realtime-job-scraper/internal/orchestrator"
	"github.com/JakeFAU/realtime-job-scraper/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/realtime-job-scraper/internal/publisher/pubsub"
	redispublisher "github.com/JakeFAU/realtime-job-scraper/internal/publisher/redis"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
	chromedpsession "github.com/JakeFAU/realtime-job-scraper/internal/session/chromedp"
	collysession "github.com/JakeFAU/realtime-job-scraper/internal/session/colly"
	"github.com/JakeFAU/realtime-job-scraper/internal/storage/gcs"
	"github.com/JakeFAU/realtime-job-scraper/internal/storage/local"
	"github.com/JakeFAU/realtime-job-scraper/internal/storage/memory"
	"github.com/JakeFAU/realtime-job-scraper/internal/storage/postgres"
)

// SessionOpener opens one automation session.
type SessionOpener func(ctx context.Context) (scraper.Session, error)

// Options overrides collaborators, mostly for tests.
type Options struct {
	// Registerer receives the event-derived collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// OpenSession replaces the configured browser driver.
	OpenSession SessionOpener
	// Extractor replaces the LinkedIn extractor.
	Extractor scraper.PageExtractor
}

// App holds the shared, long-lived services of one process: the event bus and
// hub with every configured sink, the pacing limiter shared by all sessions,
// the page extractor and the run store.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     scraper.Clock
	limiter   *ratelimit.Limiter
	extractor scraper.PageExtractor
	open      SessionOpener

	bus       *events.Bus
	hub       *events.Hub
	collector *csv.Collector
	detach    func()
	runs      scraper.RunStore

	closers []func() error
}

// New creates and initializes an App from cfg. It fails fast if any
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		clock:   system.New(),
		limiter: ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Pacing.RequestsPerSecond, Burst: cfg.Pacing.Burst}),
	}
	defer func() {
		if err != nil {
			_ = a.closeBackends()
		}
	}()

	a.extractor = opts.Extractor
	if a.extractor == nil {
		a.extractor = linkedin.New(linkedin.Config{BaseURL: cfg.LinkedIn.BaseURL}, logger.Named("linkedin"))
	}
	a.open = opts.OpenSession
	if a.open == nil {
		a.open = a.openConfiguredSession
	}

	sinks, err := a.buildSinks(ctx, opts)
	if err != nil {
		return nil, err
	}
	hubCfg := cfg.EventHub()
	hubCfg.Logger = logger.Named("hub")
	a.hub = events.NewHub(hubCfg, sinks...)
	a.bus = events.NewBus(logger.Named("events"))
	a.bus.OnAll(a.hub.Emit)

	if cfg.Output.CSVPath != "" {
		a.collector, err = csv.NewCollector(cfg.Output.CSVPath, logger.Named("csv"))
		if err != nil {
			a.shutdownHub(ctx)
			return nil, fmt.Errorf("init csv export: %w", err)
		}
		a.detach = a.collector.Attach(a.bus)
	}

	if a.runs == nil {
		a.runs = memory.NewRunStore()
	}
	logger.Info("application services initialized",
		zap.String("driver", cfg.Browser.Driver),
		zap.Int("sinks", len(sinks)),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("publish", cfg.Publish.Driver),
	)
	return a, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Emitter is the process-wide bus every run reports to.
func (a *App) Emitter() events.Emitter {
	return a.bus
}

// Runs returns the run store used by the HTTP API.
func (a *App) Runs() scraper.RunStore {
	return a.runs
}

// Clock returns the wall clock shared by every orchestrator.
func (a *App) Clock() scraper.Clock {
	return a.clock
}

// NewOrchestrator opens a session and wraps it in an orchestrator reporting to
// emitter. A non-empty runID is used for the orchestrator's runs.
func (a *App) NewOrchestrator(ctx context.Context, runID string, emitter events.Emitter) (*orchestrator.Orchestrator, error) {
	session, err := a.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	var ids scraper.IDGenerator = uuid.New("run-")
	if runID != "" {
		ids = uuid.Fixed(runID)
	}
	logger := a.logger.Named("orchestrator")
	return orchestrator.New(session, a.extractor, emitter, orchestrator.Config{
		IDs:   ids,
		Clock: a.clock,
		OnResolved: func(index int, spec scraper.QuerySpec, eff scraper.EffectiveOptions) {
			logger.Debug("query resolved",
				zap.Int("index", index),
				zap.String("query", spec.Query),
				zap.Strings("locations", eff.Locations),
				zap.Int("limit", eff.Limit),
			)
		},
	}, logger), nil
}

// SessionRunner opens a runner for an API-submitted run. Events go to emitter,
// which the caller is expected to forward to Emitter.
func (a *App) SessionRunner(ctx context.Context, runID string, emitter events.Emitter) (dispatcher.Runner, error) {
	orch, err := a.NewOrchestrator(ctx, runID, emitter)
	if err != nil {
		return nil, err
	}
	return orch, nil
}

// BatchRunner opens a runner for one configured session batch.
func (a *App) BatchRunner(ctx context.Context, _ int, _ dispatcher.Batch) (dispatcher.Runner, error) {
	orch, err := a.NewOrchestrator(ctx, "", a.bus)
	if err != nil {
		return nil, err
	}
	return orch, nil
}

// RunConfigured executes every configured session concurrently and joins them.
func (a *App) RunConfigured(ctx context.Context) error {
	batches, err := a.cfg.Batches()
	if err != nil {
		return fmt.Errorf("build batches: %w", err)
	}
	if len(batches) == 0 {
		return errors.New("no sessions configured")
	}
	d := dispatcher.New(a.BatchRunner, dispatcher.Config{MaxConcurrent: a.cfg.MaxConcurrentSessions}, a.logger.Named("dispatcher"))
	return d.RunSessions(ctx, batches)
}

// Close drains the hub, flushes sinks and releases every backend.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	if a.detach != nil {
		a.detach()
	}
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.collector != nil {
		if err := a.collector.Err(); err != nil {
			errs = append(errs, fmt.Errorf("csv export: %w", err))
		}
	}
	if err := a.closeBackends(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) shutdownHub(ctx context.Context) {
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("close event hub", zap.Error(err))
	}
}

func (a *App) closeBackends() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildSinks(ctx context.Context, opts Options) ([]events.Sink, error) {
	sinks := []events.Sink{observers.NewLogSink(a.logger.Named("observer"))}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := observers.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	sinks = append(sinks, promSink)

	if a.cfg.DB.DSN != "" {
		store, err := a.openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, observers.NewStoreSink(store, a.logger.Named("store")))
	}

	archive, err := a.buildArchive(ctx)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}

	publish, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if publish != nil {
		sinks = append(sinks, publish)
	}
	return sinks, nil
}

// openPostgres connects the job table and the run bookkeeping tables.
func (a *App) openPostgres(ctx context.Context) (*postgres.JobStore, error) {
	a.logger.Info("connecting to postgres", zap.String("table", a.cfg.DB.Table))
	jobs, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}
	a.closers = append(a.closers, func() error { jobs.Close(); return nil })

	runs, err := postgres.NewRunStore(ctx, a.cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("init run store: %w", err)
	}
	a.closers = append(a.closers, func() error { runs.Close(); return nil })
	a.runs = runs
	return jobs, nil
}

func (a *App) buildArchive(ctx context.Context) (events.Sink, error) {
	var blobs scraper.BlobStore
	switch a.cfg.Archive.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		blobs = memory.NewBlobStore()
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		blobs = store
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		blobs = store
	default:
		return nil, fmt.Errorf("unknown archive driver %q", a.cfg.Archive.Driver)
	}
	sink, err := observers.NewArchiveSink(blobs, sha256.New(), a.cfg.Archive.Prefix, a.logger.Named("archive"))
	if err != nil {
		return nil, fmt.Errorf("init archive sink: %w", err)
	}
	return sink, nil
}

func (a *App) buildPublisher(ctx context.Context) (events.Sink, error) {
	var publisher scraper.Publisher
	switch a.cfg.Publish.Driver {
	case "", "none":
		return nil, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Publish.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		p, err := pubsubpublisher.New(client, a.cfg.Publish.Topic)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
	case "redis":
		client, err := redispublisher.NewClient(ctx, a.cfg.Publish.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis client: %w", err)
		}
		p, err := redispublisher.New(client, a.cfg.Publish.Topic)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init redis publisher: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
	default:
		return nil, fmt.Errorf("unknown publish driver %q", a.cfg.Publish.Driver)
	}
	sink, err := observers.NewPublishSink(publisher, a.cfg.Publish.Topic, a.logger.Named("publish"))
	if err != nil {
		return nil, fmt.Errorf("init publish sink: %w", err)
	}
	return sink, nil
}

func (a *App) openConfiguredSession(_ context.Context) (scraper.Session, error) {
	b := a.cfg.Browser
	switch b.Driver {
	case "colly":
		return collysession.New(collysession.Config{
			UserAgent: b.UserAgent,
			Timeout:   b.NavigationTimeout,
			SlowMo:    b.SlowMo,
		}, a.limiter, a.logger.Named("colly")), nil
	case "", "chromedp":
		session, err := chromedpsession.New(chromedpsession.Config{
			Headless:          b.Headless,
			SlowMo:            b.SlowMo,
			Args:              b.Args,
			UserAgent:         b.UserAgent,
			NavigationTimeout: b.NavigationTimeout,
			MaxTabs:           b.MaxTabs,
			ExecPath:          b.ExecPath,
		}, a.limiter, a.logger.Named("chromedp"))
		if err != nil {
			return nil, fmt.Errorf("init chromedp session: %w", err)
		}
		return session, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", b.Driver)
	}
}
