package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/browser"
	"github.com/webvoice/access-assistant/internal/scrape"
)

// LauncherScraper adapts a browser launcher to the one-shot scrape endpoint.
// A zero Timeout means the caller's context bounds the scrape alone.
type LauncherScraper struct {
	Launcher    *browser.Launcher
	ScrollSteps int
	Timeout     time.Duration
}

func (l *LauncherScraper) ScrapeURL(ctx context.Context, url string) (scrape.Snapshot, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	return scrape.Page(ctx, l.Launcher, url, l.ScrollSteps)
}

// LauncherExecutor adapts a browser launcher to the one-shot execute
// endpoint. Each run gets its own page and leaves nothing open.
type LauncherExecutor struct {
	Launcher *browser.Launcher
	Executor *action.Executor
}

func NewLauncherExecutor(launcher *browser.Launcher, logger zerolog.Logger) *LauncherExecutor {
	return &LauncherExecutor{Launcher: launcher, Executor: action.NewExecutor(logger)}
}

func (l *LauncherExecutor) ExecuteURL(ctx context.Context, url string, actions []action.Spec, query string) (action.Report, error) {
	return l.Executor.Execute(ctx, l.Launcher, url, actions, query, action.Hooks{})
}
