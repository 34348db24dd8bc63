// Package collysession implements scraper.Session over plain HTTP using gocolly.
// It suits endpoints that serve complete HTML without JavaScript, such as the
// LinkedIn guest job API.
package collysession

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

const driverName = "colly"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// SlowMo pauses after every navigation.
	SlowMo  time.Duration
	Headers http.Header
}

// Pacer delays navigations; *ratelimit.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Session issues GET requests through a shared collector.
type Session struct {
	cfg           Config
	pacer         Pacer
	logger        *zap.Logger
	transport     http.RoundTripper
	baseCollector *colly.Collector
	closed        atomic.Bool
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Session.
func New(cfg Config, pacer Pacer, logger *zap.Logger) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Session{
		cfg:           cfg,
		pacer:         pacer,
		logger:        logger,
		transport:     transport,
		baseCollector: c,
	}
}

// Navigate fetches rawURL. Responses with status >= 400 are returned as errors.
func (s *Session) Navigate(ctx context.Context, rawURL string) (scraper.Document, error) {
	if s.closed.Load() {
		return scraper.Document{}, &scraper.SessionError{Err: scraper.ErrSessionClosed}
	}
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, rawURL); err != nil {
			return scraper.Document{}, fmt.Errorf("pace navigation: %w", err)
		}
	}

	var (
		doc      scraper.Document
		fetchErr error
	)
	collector := s.buildCollector(ctx, &doc, &fetchErr)
	if err := s.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		metrics.ObserveNavigation(rawURL, driverName, "error", 0)
		if s.closed.Load() {
			return scraper.Document{}, &scraper.SessionError{Err: scraper.ErrSessionClosed}
		}
		return scraper.Document{}, err
	}
	metrics.ObserveNavigation(rawURL, driverName, "ok", len(doc.HTML))
	s.logger.Debug("navigated",
		zap.String("url", rawURL),
		zap.Int("status", doc.StatusCode),
		zap.Int("bytes", len(doc.HTML)),
	)
	if err := s.slowMo(ctx); err != nil {
		return scraper.Document{}, err
	}
	return doc, nil
}

// Close marks the session unusable and drops idle connections.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if t, ok := s.transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// buildCollector clones the base collector for one visit. Its requests are
// bound to ctx so cancellation aborts the HTTP exchange itself.
func (s *Session) buildCollector(ctx context.Context, doc *scraper.Document, fetchErr *error) *colly.Collector {
	collector := s.baseCollector.Clone()
	collector.Context = ctx
	collector.IgnoreRobotsTxt = true
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)
	collector.WithTransport(s.transport)
	s.configureCollectorHooks(collector, doc, fetchErr)
	return collector
}

func (s *Session) configureCollectorHooks(hooks collectorHooks, doc *scraper.Document, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range s.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*doc = scraper.Document{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			*fetchErr = fmt.Errorf("unexpected status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (s *Session) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly navigation canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (s *Session) slowMo(ctx context.Context) error {
	if s.cfg.SlowMo <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.SlowMo)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("slow motion wait canceled: %w", ctx.Err())
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
