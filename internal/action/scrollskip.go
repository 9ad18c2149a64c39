package action

import (
	"strings"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/scrape"
)

// DataSufficient builds a before-scroll hook that re-scrapes the current
// viewport (no scrolling) and skips the pending scroll when every remaining
// click/fill target is already resolvable against the fresh inventory.
func DataSufficient(logger zerolog.Logger) BeforeScrollFunc {
	return func(page playwright.Page, remaining []Spec, query string) bool {
		snap, err := scrape.FromPage(page, "", scrape.ViewportOnly)
		if err != nil {
			logger.Debug().Err(err).Msg("scroll-skip scrape failed, scrolling anyway")
			return false
		}
		return targetsCovered(snap, remaining)
	}
}

// targetsCovered reports whether every remaining click/fill target appears in
// the snapshot. With no remaining click/fill actions the scroll is presumed
// intentional and not skipped.
func targetsCovered(snap scrape.Snapshot, remaining []Spec) bool {
	checked := 0
	for _, act := range remaining {
		if act.Action != Click && act.Action != Fill {
			continue
		}
		if act.Target == "" {
			continue
		}
		checked++
		if !snapshotHasTarget(snap, act.Target) {
			return false
		}
	}
	return checked > 0
}

func snapshotHasTarget(snap scrape.Snapshot, target string) bool {
	lower := strings.ToLower(target)
	for _, el := range snap.Elements {
		if el.CSSSelector == target || el.XPathSelector == target {
			return true
		}
		if el.ID == target || el.Name == target || el.Placeholder == target {
			return true
		}
		if hasSelectorSyntax(target) {
			continue
		}
		if el.Text != "" && strings.Contains(strings.ToLower(el.Text), lower) {
			return true
		}
		if el.AriaLabel != "" && strings.Contains(strings.ToLower(el.AriaLabel), lower) {
			return true
		}
	}
	return false
}
