package session

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/browser"
	"github.com/webvoice/access-assistant/internal/scrape"
)

// playwrightDriver holds the real browser handles. Only the manager's worker
// goroutine calls into it.
type playwrightDriver struct {
	headless  bool
	logger    zerolog.Logger
	launcher  *browser.Launcher
	page      playwright.Page
	closePage func()
	executor  *action.Executor
}

func newPlaywrightDriver(headless bool, logger zerolog.Logger) driver {
	return &playwrightDriver{
		headless: headless,
		logger:   logger,
		executor: action.NewExecutor(logger),
	}
}

func (d *playwrightDriver) HasPage() bool {
	return d.page != nil && !d.page.IsClosed()
}

func (d *playwrightDriver) URL() string {
	if !d.HasPage() {
		return ""
	}
	return d.page.URL()
}

func (d *playwrightDriver) EnsurePage(url string) error {
	target := normalizeForCompare(url)
	if target == "" {
		return fmt.Errorf("url is required")
	}

	if d.HasPage() {
		if normalizeForCompare(d.page.URL()) == target {
			// already there; navigating again would lose in-page state
			d.logger.Debug().Str("url", url).Msg("session already at target URL")
			return nil
		}
		return browser.Navigate(d.page, url)
	}

	if d.launcher == nil {
		launcher, err := browser.NewLauncher(d.headless)
		if err != nil {
			return err
		}
		d.launcher = launcher
	}
	page, closePage, err := d.launcher.NewPage()
	if err != nil {
		return err
	}
	if err := browser.Navigate(page, url); err != nil {
		closePage()
		return err
	}
	d.page = page
	d.closePage = closePage
	d.logger.Info().Str("url", url).Msg("session page opened")
	return nil
}

func (d *playwrightDriver) Scrape(scrollSteps int) (scrape.Snapshot, error) {
	if !d.HasPage() {
		return scrape.Snapshot{}, ErrNoSession
	}
	if scrollSteps < 0 {
		scrollSteps = scrape.SessionScrollSteps
	}
	return scrape.FromPage(d.page, "", scrollSteps)
}

func (d *playwrightDriver) Execute(actions []action.Spec, query string, hooks action.Hooks) (action.Report, error) {
	if !d.HasPage() {
		return action.Report{}, ErrNoSession
	}
	return d.executor.Run(d.page, actions, query, hooks), nil
}

// Close releases the page and browser and clears the handles so a later
// EnsurePage starts a fresh session. Safe to call with nothing open.
func (d *playwrightDriver) Close() error {
	if d.closePage != nil {
		d.closePage()
		d.closePage = nil
	}
	d.page = nil
	if d.launcher != nil {
		err := d.launcher.Close()
		d.launcher = nil
		if err != nil {
			return err
		}
	}
	return nil
}
