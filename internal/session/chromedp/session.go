// Package chromedpsession implements scraper.Session on top of a Chrome browser driven by chromedp.
package chromedpsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

const (
	driverName               = "chromedp"
	defaultNavigationTimeout = 45 * time.Second
)

// Config controls how the browser is launched and driven.
type Config struct {
	Headless bool
	// SlowMo pauses after every navigation.
	SlowMo time.Duration
	// Args are extra Chrome command-line switches such as "--lang=en-GB".
	Args              []string
	UserAgent         string
	NavigationTimeout time.Duration
	// MaxTabs bounds concurrently open tabs; zero means unbounded.
	MaxTabs int
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
}

// Pacer delays navigations; *ratelimit.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Session owns one browser process. Each navigation opens its own tab.
type Session struct {
	cfg    Config
	pacer  Pacer
	logger *zap.Logger
	tabs   chan struct{}

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
}

// New prepares a browser session. Chrome is launched lazily on the first navigation.
func New(cfg Config, pacer Pacer, logger *zap.Logger) (*Session, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	if cfg.SlowMo < 0 {
		return nil, fmt.Errorf("slow motion delay must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var tabs chan struct{}
	if cfg.MaxTabs > 0 {
		tabs = make(chan struct{}, cfg.MaxTabs)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	return &Session{
		cfg:           cfg,
		pacer:         pacer,
		logger:        logger,
		tabs:          tabs,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Navigate loads rawURL in a fresh tab and returns the rendered DOM.
func (s *Session) Navigate(ctx context.Context, rawURL string) (scraper.Document, error) {
	if s.closed.Load() {
		return scraper.Document{}, &scraper.SessionError{Err: scraper.ErrSessionClosed}
	}
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, rawURL); err != nil {
			return scraper.Document{}, fmt.Errorf("pace navigation: %w", err)
		}
	}
	if err := s.acquire(ctx); err != nil {
		return scraper.Document{}, err
	}
	defer s.release()

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()
	taskCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	meta := &responseMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := s.render(taskCtx, rawURL)
	if err != nil {
		metrics.ObserveNavigation(rawURL, driverName, "error", 0)
		return scraper.Document{}, s.classify(ctx, err)
	}
	status, docURL := meta.snapshot(rawURL, finalURL)
	metrics.ObserveNavigation(rawURL, driverName, statusClass(status), len(html))
	s.logger.Debug("navigated",
		zap.String("url", rawURL),
		zap.Int("status", status),
		zap.Int("bytes", len(html)),
	)
	if status >= 400 {
		return scraper.Document{}, fmt.Errorf("navigate %s: unexpected status %d", rawURL, status)
	}

	if err := s.slowMo(ctx); err != nil {
		return scraper.Document{}, err
	}
	return scraper.Document{URL: docURL, StatusCode: status, HTML: []byte(html)}, nil
}

// Close terminates the browser. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.browserCancel()
		s.allocCancel()
	})
	return nil
}

func (s *Session) render(ctx context.Context, rawURL string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// classify separates a dead browser (fatal) from an ordinary navigation failure.
func (s *Session) classify(ctx context.Context, err error) error {
	switch {
	case s.closed.Load():
		return &scraper.SessionError{Err: scraper.ErrSessionClosed}
	case s.browserCtx.Err() != nil:
		return &scraper.SessionError{Err: fmt.Errorf("browser exited: %w", err)}
	case errors.Is(err, chromedp.ErrInvalidContext):
		return &scraper.SessionError{Err: err}
	case ctx.Err() != nil:
		return fmt.Errorf("navigation canceled: %w", ctx.Err())
	default:
		return err
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

func (s *Session) acquire(ctx context.Context) error {
	if s.tabs == nil {
		return nil
	}
	select {
	case s.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tab slot wait canceled: %w", ctx.Err())
	}
}

func (s *Session) release() {
	if s.tabs == nil {
		return
	}
	select {
	case <-s.tabs:
	default:
	}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		name, value, ok := parseSwitch(arg)
		if !ok {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseSwitch turns "--lang=en-GB" into ("lang", "en-GB") and "--no-sandbox"
// into ("no-sandbox", true).
func parseSwitch(arg string) (string, any, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil, false
	}
	name, value, hasValue := strings.Cut(arg, "=")
	if name == "" {
		return "", nil, false
	}
	if !hasValue {
		return name, true, true
	}
	return name, value, true
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// forwardCancel cancels when parent finishes; the returned func stops forwarding.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type responseMeta struct {
	mu     sync.Mutex
	status int
	url    string
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
}

func (m *responseMeta) snapshot(requestURL, finalURL string) (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, url := m.status, m.url
	if finalURL != "" {
		url = finalURL
	}
	if url == "" {
		url = requestURL
	}
	if status == 0 {
		status = 200
	}
	return status, url
}
