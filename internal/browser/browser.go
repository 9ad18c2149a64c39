// Package browser owns the playwright lifecycle and shared page plumbing.
// All higher-level components (scraper, session, executor, recorder) receive
// pages from a Launcher and never start playwright themselves.
package browser

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultNavTimeoutMS   = 30000
	bodyAttachedTimeoutMS = 15000
	networkIdleTimeoutMS  = 15000
)

// Launcher owns one playwright runtime and one Chromium instance.
type Launcher struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	headless bool
}

func NewLauncher(headless bool) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--start-maximized",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: browser, headless: headless}, nil
}

func (l *Launcher) Headless() bool {
	return l.headless
}

// NewPage opens a fresh browser context with one page. The returned close
// function releases both and is safe to call once.
func (l *Launcher) NewPage() (playwright.Page, func(), error) {
	context, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		NoViewport:        playwright.Bool(true),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("new context: %w", err)
	}
	page, err := context.NewPage()
	if err != nil {
		_ = context.Close()
		return nil, nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(defaultNavTimeoutMS)
	closeFn := func() {
		if !page.IsClosed() {
			_ = page.Close()
		}
		_ = context.Close()
	}
	return page, closeFn, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

// Navigate loads url and waits for DOM content plus an attached body, then
// for a bounded network-idle window. The idle wait is best effort: heavy
// pages never go fully idle, so a timeout there is not an error.
func Navigate(page playwright.Page, url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("url is required")
	}
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(defaultNavTimeoutMS),
	})
	if err != nil {
		return wrap(err)
	}
	// state=attached so pages with an initially hidden body do not time out
	_, err = page.WaitForSelector("body", playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(bodyAttachedTimeoutMS),
	})
	if err != nil {
		return wrap(err)
	}
	SettleNetwork(page)
	return nil
}

// SettleNetwork waits for a short network-idle window; a timeout means the
// page keeps loading in the background and we proceed with what is there.
func SettleNetwork(page playwright.Page) {
	_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(networkIdleTimeoutMS),
	})
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}
