package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Options configures the Chrome process.
type Options struct {
	Headless        bool
	ExecPath        string
	UserAgent       string
	NavigateTimeout time.Duration
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is a Page backed by chromedp. The first browser tab is kept blank so closing a
// working tab never tears the browser down.
type Session struct {
	opts Options
	log  logger.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	cur    tab
	opener *tab
}

// NewSession starts Chrome and opens a working tab. Cancelling parent kills the browser.
func NewSession(parent context.Context, opts Options, log logger.Logger) (*Session, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 60 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	s := &Session{
		opts:          opts,
		log:           logger.Ensure(log),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		s.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	s.cur = tab{ctx: tabCtx, cancel: tabCancel}
	return s, nil
}

func (s *Session) current() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.ctx
}

// run executes actions in the current tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	return runIn(ctx, s.current(), timeout, actions...)
}

func runIn(ctx, tabCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ErrNotFound
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.opts.NavigateTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.opts.NavigateTimeout, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (s *Session) WaitPresent(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitReady(sel, chromedp.BySearch))
}

func (s *Session) WaitClickable(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout,
		chromedp.WaitVisible(sel, chromedp.BySearch),
		chromedp.WaitEnabled(sel, chromedp.BySearch),
	)
}

func (s *Session) Count(ctx context.Context, sel string) (int, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, s.opts.NavigateTimeout,
		chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
	); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (s *Session) Text(ctx context.Context, sel string, timeout time.Duration) (string, error) {
	var text string
	if err := s.run(ctx, timeout, chromedp.Text(sel, &text, chromedp.BySearch)); err != nil {
		return "", err
	}
	return text, nil
}

func (s *Session) Attribute(ctx context.Context, sel, name string, timeout time.Duration) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	if err := s.run(ctx, timeout, chromedp.AttributeValue(sel, name, &value, &ok, chromedp.BySearch)); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (s *Session) OuterHTML(ctx context.Context, sel string, timeout time.Duration) (string, error) {
	var html string
	if err := s.run(ctx, timeout, chromedp.OuterHTML(sel, &html, chromedp.BySearch)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *Session) Click(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible))
}

func (s *Session) ScrollIntoView(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.ScrollIntoView(sel, chromedp.BySearch))
}

func (s *Session) ClickIntoNewTab(ctx context.Context, sel string, timeout time.Duration) error {
	s.mu.Lock()
	if s.opener != nil {
		s.mu.Unlock()
		return fmt.Errorf("previous opener tab not released")
	}
	cur := s.cur
	s.mu.Unlock()

	openerID := chromedp.FromContext(cur.ctx).Target.TargetID
	created := chromedp.WaitNewTarget(cur.ctx, func(info *target.Info) bool {
		return info.Type == "page" && info.OpenerID == openerID
	})

	if err := runIn(ctx, cur.ctx, timeout, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return err
	}

	var id target.ID
	select {
	case id = <-created:
	case <-time.After(timeout):
		return fmt.Errorf("click did not open a tab: %w", ErrNotFound)
	case <-ctx.Done():
		return ctx.Err()
	}

	newCtx, newCancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(newCtx); err != nil {
		newCancel()
		return fmt.Errorf("attach new tab: %w", err)
	}

	s.mu.Lock()
	s.opener = &cur
	s.cur = tab{ctx: newCtx, cancel: newCancel}
	s.mu.Unlock()
	s.log.DebugObj("switched to new tab", "target", string(id))
	return nil
}

func (s *Session) ReleaseOpener(ctx context.Context) (string, error) {
	s.mu.Lock()
	opener := s.opener
	s.opener = nil
	s.mu.Unlock()
	if opener == nil {
		return "", nil
	}
	defer opener.cancel()

	var loc string
	if err := runIn(ctx, opener.ctx, s.opts.NavigateTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read opener location: %w", err)
	}
	if err := runIn(ctx, opener.ctx, s.opts.NavigateTimeout, page.Close()); err != nil {
		s.log.WarnObj("close opener tab failed", "error", err.Error())
	}
	return loc, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.opener != nil {
		s.opener.cancel()
		s.opener = nil
	}
	if s.cur.cancel != nil {
		s.cur.cancel()
	}
	s.mu.Unlock()

	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

var _ Page = (*Session)(nil)
