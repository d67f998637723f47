// Package browser provides browser automation functionality
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// ErrNotReady is returned by Load when the readiness condition did not hold in time.
// The markup rendered so far is still returned alongside it.
var ErrNotReady = errors.New("page not ready")

// ConsentOptions configures the one-time cookie and terms workflow
type ConsentOptions struct {
	LandingURL    string
	CookieAPI     string
	TermsSelector string
	TermsTimeout  time.Duration
}

// Options configures a browser session
type Options struct {
	Headless     bool
	ReadyTimeout time.Duration
	PollInterval time.Duration
	Consent      ConsentOptions
}

func (o Options) withDefaults() Options {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 15 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.Consent.TermsTimeout <= 0 {
		o.Consent.TermsTimeout = 10 * time.Second
	}
	return o
}

// Session owns a single browser tab shared by every page load of a run
type Session struct {
	opts        Options
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

// AllocatorOptions returns the exec allocator flags used to start Chrome
func AllocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("enable-javascript", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"),
	)
}

// Open starts Chrome and a single tab. The caller must Close the session.
func Open(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(opts.Headless)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logrus.Debugf))

	s := &Session{
		opts:        opts,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      cancel,
	}

	// Native dialogs block navigation until answered
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if dialog, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			logrus.WithField("message", dialog.Message).Debug("accepting javascript dialog")
			go func() {
				_ = chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true))
			}()
		}
	})

	// The first Run allocates the browser; it must use the tab context itself
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return s, nil
}

// Close shuts the tab and the browser process down
func (s *Session) Close() error {
	var err error
	if s.ctx != nil {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// bind derives a context from the tab that is also cancelled with ctx
func (s *Session) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.ctx)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		prev := cancel
		cancel = func() {
			cancelTimeout()
			prev()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := s.bind(ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Establish opens the landing page and works through the consent gate.
// Only a failure to load the landing page is returned as an error.
func (s *Session) Establish(ctx context.Context) (ConsentReport, error) {
	consent := s.opts.Consent
	if consent.LandingURL == "" {
		return ConsentReport{Cookies: notApplicable("cookies"), Terms: notApplicable("terms")}, nil
	}

	if err := s.run(ctx, 0, chromedp.Navigate(consent.LandingURL)); err != nil {
		return ConsentReport{}, fmt.Errorf("failed to open landing page %s: %w", consent.LandingURL, err)
	}

	report := ConsentReport{
		Cookies: s.acceptCookies(ctx),
		Terms:   s.acceptTerms(ctx),
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Session) acceptCookies(ctx context.Context) StepResult {
	const step = "cookies"
	api := s.opts.Consent.CookieAPI
	if api == "" {
		return notApplicable(step)
	}

	var available bool
	check := fmt.Sprintf("(() => { try { return typeof (%s) === 'function'; } catch (e) { return false; } })()", api)
	if err := s.run(ctx, s.opts.Consent.TermsTimeout, chromedp.Evaluate(check, &available)); err != nil {
		return failed(step, err)
	}
	if !available {
		return notApplicable(step)
	}

	var done bool
	call := fmt.Sprintf("(() => { %s(); return true; })()", api)
	if err := s.run(ctx, s.opts.Consent.TermsTimeout, chromedp.Evaluate(call, &done)); err != nil {
		return failed(step, err)
	}
	return performed(step)
}

func (s *Session) acceptTerms(ctx context.Context) StepResult {
	const step = "terms"
	sel := s.opts.Consent.TermsSelector
	if sel == "" {
		return notApplicable(step)
	}

	err := s.run(ctx, s.opts.Consent.TermsTimeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return notApplicable(step)
		}
		return failed(step, err)
	}

	if err := s.run(ctx, s.opts.Consent.TermsTimeout, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return failed(step, err)
	}

	// Wait for the overlay to go away instead of sleeping
	quoted, _ := json.Marshal(sel)
	gone := fmt.Sprintf("(() => { const el = document.querySelector(%s); return !el || el.offsetParent === null; })()", quoted)
	var hidden bool
	if err := s.run(ctx, 0, chromedp.Poll(gone, &hidden,
		chromedp.WithPollingTimeout(s.opts.Consent.TermsTimeout),
		chromedp.WithPollingInterval(s.opts.PollInterval),
	)); err != nil {
		logrus.WithError(err).Debug("terms control still visible after click")
	}
	return performed(step)
}

// Load navigates the shared tab to url and returns the rendered markup once
// readyJS evaluates truthy. An empty readyJS skips the wait.
func (s *Session) Load(ctx context.Context, url string, readyJS string) (string, error) {
	if err := s.run(ctx, 0, chromedp.Navigate(url)); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	var waitErr error
	if readyJS != "" {
		var ready bool
		err := s.run(ctx, 0, chromedp.Poll(readyJS, &ready,
			chromedp.WithPollingTimeout(s.opts.ReadyTimeout),
			chromedp.WithPollingInterval(s.opts.PollInterval),
		))
		switch {
		case errors.Is(err, chromedp.ErrPollingTimeout):
			waitErr = fmt.Errorf("%w: %s after %s", ErrNotReady, url, s.opts.ReadyTimeout)
		case err != nil:
			return "", fmt.Errorf("failed waiting for %s: %w", url, err)
		}
	}

	var htmlContent string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &htmlContent, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content of %s: %w", url, err)
	}

	return htmlContent, waitErr
}
