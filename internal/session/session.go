// Package session serializes all access to one persistent browser page.
// playwright requires every call touching a page to come from a single
// logical thread of control, so the manager runs a single worker goroutine
// that owns the page and processes commands strictly in submission order.
// Callers from any goroutine block until their command's result is posted
// back; one failed command is surfaced to its caller only and never kills
// the worker loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/scrape"
)

// ErrNoSession is returned when a scrape or execute is requested and no page
// is open.
var ErrNoSession = errors.New("no browser session; open a page first")

// ErrManagerClosed is returned for commands submitted after Shutdown.
var ErrManagerClosed = errors.New("session manager is shut down")

const startupWait = 5 * time.Second

// driver is the browser-facing half of the manager. The worker goroutine is
// its only caller, so implementations need no locking of their own.
type driver interface {
	EnsurePage(url string) error
	HasPage() bool
	URL() string
	Scrape(scrollSteps int) (scrape.Snapshot, error)
	Execute(actions []action.Spec, query string, hooks action.Hooks) (action.Report, error)
	Close() error
}

type command struct {
	run   func(d driver) (any, error)
	reply chan result
}

type result struct {
	val any
	err error
}

type Manager struct {
	newDriver func() driver
	logger    zerolog.Logger

	startOnce sync.Once
	started   chan struct{}
	cmds      chan command

	mu   sync.Mutex
	done bool
}

// NewManager wires the manager to the real playwright driver. The browser is
// not launched until the first EnsurePage.
func NewManager(headless bool, logger zerolog.Logger) *Manager {
	return newManager(func() driver {
		return newPlaywrightDriver(headless, logger)
	}, logger)
}

func newManager(newDriver func() driver, logger zerolog.Logger) *Manager {
	return &Manager{
		newDriver: newDriver,
		logger:    logger,
		started:   make(chan struct{}),
		cmds:      make(chan command),
	}
}

// EnsurePage makes sure the session page is open at url: it launches the
// browser lazily, navigates when the normalized URL differs, and does
// nothing when the page is already there.
func (m *Manager) EnsurePage(ctx context.Context, url string) error {
	_, err := m.submit(ctx, func(d driver) (any, error) {
		return nil, d.EnsurePage(url)
	})
	return err
}

// ScrapeCurrent scrapes the live session page. scrollSteps 0 collects the
// current viewport only; a negative value uses the session default depth.
func (m *Manager) ScrapeCurrent(ctx context.Context, scrollSteps int) (scrape.Snapshot, error) {
	val, err := m.submit(ctx, func(d driver) (any, error) {
		if !d.HasPage() {
			return nil, ErrNoSession
		}
		return d.Scrape(scrollSteps)
	})
	if err != nil {
		return scrape.Snapshot{}, err
	}
	return val.(scrape.Snapshot), nil
}

// Execute runs an action sequence on the live session page and leaves the
// page open.
func (m *Manager) Execute(ctx context.Context, actions []action.Spec, query string, hooks action.Hooks) (action.Report, error) {
	val, err := m.submit(ctx, func(d driver) (any, error) {
		if !d.HasPage() {
			return nil, ErrNoSession
		}
		return d.Execute(actions, query, hooks)
	})
	if err != nil {
		return action.Report{}, err
	}
	return val.(action.Report), nil
}

// Close releases the page and browser. Calling it without an active session
// is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	_, err := m.submit(ctx, func(d driver) (any, error) {
		return nil, d.Close()
	})
	return err
}

// HasSession reports whether a live page exists. The check goes through the
// worker queue so it cannot race a concurrent navigation.
func (m *Manager) HasSession(ctx context.Context) bool {
	val, err := m.submit(ctx, func(d driver) (any, error) {
		return d.HasPage(), nil
	})
	if err != nil {
		return false
	}
	return val.(bool)
}

// CurrentURL returns the live page's URL, or "" when no session exists.
func (m *Manager) CurrentURL(ctx context.Context) string {
	val, err := m.submit(ctx, func(d driver) (any, error) {
		return d.URL(), nil
	})
	if err != nil {
		return ""
	}
	return val.(string)
}

// Shutdown stops the worker and closes any live session. Commands submitted
// afterwards fail with ErrManagerClosed.
func (m *Manager) Shutdown(ctx context.Context) {
	_ = m.Close(ctx)
	m.mu.Lock()
	if !m.done {
		m.done = true
		close(m.cmds)
	}
	m.mu.Unlock()
}

func (m *Manager) submit(ctx context.Context, run func(d driver) (any, error)) (any, error) {
	if err := m.ensureWorker(); err != nil {
		return nil, err
	}
	cmd := command{run: run, reply: make(chan result, 1)}

	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	select {
	case m.cmds <- cmd:
		m.mu.Unlock()
	case <-ctx.Done():
		m.mu.Unlock()
		return nil, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.val, res.err
	case <-ctx.Done():
		// the worker still finishes the command; only the wait is abandoned
		return nil, ctx.Err()
	}
}

func (m *Manager) ensureWorker() error {
	m.startOnce.Do(func() {
		go m.workerLoop()
	})
	select {
	case <-m.started:
		return nil
	case <-time.After(startupWait):
		return errors.New("session worker did not start")
	}
}

func (m *Manager) workerLoop() {
	drv := m.newDriver()
	close(m.started)
	for cmd := range m.cmds {
		res := runSafely(cmd.run, drv)
		cmd.reply <- res
	}
	// drain: release the browser when the manager is shut down
	if drv.HasPage() {
		_ = drv.Close()
	}
}

// runSafely contains panics from a command so a single bad command cannot
// take the worker loop down with it.
func runSafely(run func(d driver) (any, error), d driver) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("session command panicked: %v", r)}
		}
	}()
	val, err := run(d)
	return result{val: val, err: err}
}

// normalizeForCompare canonicalizes a URL for the "already there" check:
// lowercase scheme and host, drop the fragment, ignore a trailing slash,
// keep the query.
func normalizeForCompare(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	normalized := scheme + "://" + strings.ToLower(u.Host) + path
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized
}
