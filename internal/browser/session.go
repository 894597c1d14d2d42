// Package browser manages the headless Chrome process used to render and
// screenshot pages. A Manager hands out at most one live Session at a time;
// each Session implements capture.Renderer and opens a fresh tab per page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/snapvault/snapvault/internal/capture"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

	defaultViewportWidth  = 1920
	defaultViewportHeight = 1080

	// Quality 100 makes chromedp emit PNG instead of JPEG.
	screenshotQuality = 100
)

// ErrSessionActive indicates a second session was requested while one is live.
var ErrSessionActive = errors.New("a render session is already active")

// ErrSessionClosed indicates the session was used after Close.
var ErrSessionClosed = errors.New("render session closed")

// Config controls the headless browser.
type Config struct {
	// UserAgent is sent on every request. Defaults to a desktop Chrome string.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// HostQPS caps navigations per host. Zero disables the limiter.
	HostQPS float64 `mapstructure:"host_qps" yaml:"host_qps"`
	// ViewportWidth and ViewportHeight size the emulated screen.
	ViewportWidth  int `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height" yaml:"viewport_height"`
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = defaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = defaultViewportHeight
	}
	return c
}

// Manager launches sessions and guarantees no more than one is active.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger
	active bool
}

// NewManager creates a session manager. Chrome is not started until
// NewSession is called.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg.withDefaults(), logger: logger}
}

// NewSession launches Chrome and returns the session handle. It fails with
// ErrSessionActive while a previous session has not been closed.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	m.active = true
	m.mu.Unlock()

	session, err := Launch(m.cfg, m.logger)
	if err != nil {
		m.releaseSession()
		return nil, err
	}
	session.release = m.releaseSession
	return session, nil
}

func (m *Manager) releaseSession() {
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()
}

// Session owns one live Chrome process. Every Capture runs in a fresh tab so
// a crashed page cannot poison the next one; only a fatal engine fault
// requires Recycle.
type Session struct {
	mu              sync.Mutex
	cfg             Config
	logger          *zap.Logger
	release         func()
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	hostLimiters    sync.Map
	closed          bool
}

// Launch starts Chrome with the sandbox disabled for containerized runtimes
// and warms a browser context so the first Capture does not pay startup cost.
func Launch(cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{cfg: cfg.withDefaults(), logger: logger}
	if err := s.launch(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) launch() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}

	s.allocatorCancel = allocatorCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.logger.Info("browser session launched",
		zap.Int("viewport_width", s.cfg.ViewportWidth),
		zap.Int("viewport_height", s.cfg.ViewportHeight),
		zap.Float64("host_qps", s.cfg.HostQPS),
	)
	return nil
}

// Capture renders rawURL in a new tab, waits for network quiescence and
// returns a full-page PNG. Responses with status >= 400 fail with
// *capture.StatusError.
func (s *Session) Capture(ctx context.Context, rawURL string, timeout time.Duration) (capture.Shot, error) {
	browserCtx, err := s.currentBrowser()
	if err != nil {
		return capture.Shot{}, err
	}

	if waitErr := s.waitHostBudget(ctx, rawURL); waitErr != nil {
		return capture.Shot{}, fmt.Errorf("host rate limit: %w", waitErr)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newDocumentMeta()
	watcher := newLifecycleWatcher()
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		meta.record(ev)
		watcher.record(ev)
	})

	var shot []byte
	tasks := chromedp.Tasks{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetUserAgentOverride(s.cfg.UserAgent),
		chromedp.EmulateViewport(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight)),
		navigateAction(rawURL, watcher),
		watcher.waitIdle(),
		chromedp.FullScreenshot(&shot, screenshotQuality),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return capture.Shot{}, fmt.Errorf("chromedp run: %w", err)
	}

	status := meta.status()
	if status >= http.StatusBadRequest {
		return capture.Shot{}, &capture.StatusError{Code: status}
	}

	return capture.Shot{
		Bytes:      shot,
		StatusCode: status,
		FinalURL:   meta.documentURL(rawURL),
	}, nil
}

// navigateAction starts the navigation and hands the loader ID to the
// watcher, so the idle wait only honors events from this navigation and not
// from the tab's initial blank page.
func navigateAction(rawURL string, watcher *lifecycleWatcher) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, loaderID, errorText, err := page.Navigate(rawURL).Do(ctx)
		if err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		watcher.setLoader(loaderID)
		return nil
	}
}

// Recycle tears the engine down and relaunches it with the same
// configuration. Used after a fatal engine fault.
func (s *Session) Recycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.teardown()
	if err := s.launch(); err != nil {
		return fmt.Errorf("relaunch browser: %w", err)
	}
	s.logger.Info("browser session recycled")
	return nil
}

// Close shuts Chrome down and releases the manager slot. Safe to call twice.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.teardown()
	if s.release != nil {
		s.release()
	}
	return nil
}

func (s *Session) teardown() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
	}
}

func (s *Session) currentBrowser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.browserCtx, nil
}

func (s *Session) waitHostBudget(ctx context.Context, rawURL string) error {
	if s.cfg.HostQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := s.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(s.cfg.HostQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

// forwardCancel propagates cancellation of the caller's context into the
// chromedp task context, which is not derived from it.
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
