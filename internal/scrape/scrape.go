// Package scrape builds an inventory of the interactive elements visible on
// a page. Collection runs inside the page as a single Evaluate per pass;
// lazy-loaded content below the fold is discovered by scrolling one viewport
// at a time between passes and de-duplicating the accumulated records.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/webvoice/access-assistant/internal/browser"
)

const (
	// DefaultScrollSteps is the full-page scrape depth (SCRAPE_SCROLL_STEPS
	// overrides it through config at the call sites).
	DefaultScrollSteps = 20
	// SessionScrollSteps bounds scrapes of an already-open session page.
	SessionScrollSteps = 5
	// QuickScrollSteps is the shallow after-action scrape depth.
	QuickScrollSteps = 2
	// ViewportOnly collects a single pass without moving the viewport.
	ViewportOnly = 0

	sessionSettleDelay = 300 * time.Millisecond
	oneShotSettleDelay = 500 * time.Millisecond
)

// Element is one observed interactive DOM node. Field names on the wire
// match the dataset format consumed by the text-generation side.
type Element struct {
	Tag           string `json:"tag"`
	Text          string `json:"text"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Href          string `json:"href"`
	Role          string `json:"role"`
	AriaLabel     string `json:"aria_label"`
	Placeholder   string `json:"placeholder"`
	Value         string `json:"value"`
	Classes       string `json:"classes"`
	OnClick       string `json:"onclick"`
	CSSSelector   string `json:"css_selector"`
	XPathSelector string `json:"xpath_selector"`
}

// Key is the de-duplication identity: the structural xpath when the walk
// produced one, otherwise the simple css-style selector.
func (e Element) Key() string {
	if e.XPathSelector != "" {
		return e.XPathSelector
	}
	return e.CSSSelector
}

// Snapshot is the element inventory of one page at one point in time.
type Snapshot struct {
	URL      string    `json:"url"`
	Elements []Element `json:"elements"`
}

// FromPage scrapes an existing page without owning its lifecycle. url may be
// empty, in which case the page's current URL is recorded. scrollSteps <= 0
// collects the current viewport only; a positive value runs that many
// collect-scroll-settle cycles.
func FromPage(page playwright.Page, url string, scrollSteps int) (Snapshot, error) {
	if url == "" {
		url = page.URL()
	}
	inv := newInventory()
	if scrollSteps <= 0 {
		els, err := collectVisible(page)
		if err != nil {
			return Snapshot{}, err
		}
		inv.add(els)
		return Snapshot{URL: url, Elements: inv.elements}, nil
	}
	for i := 0; i < scrollSteps; i++ {
		els, err := collectVisible(page)
		if err != nil {
			return Snapshot{}, err
		}
		inv.add(els)
		if err := scrollOneViewport(page); err != nil {
			return Snapshot{}, err
		}
		time.Sleep(sessionSettleDelay)
	}
	return Snapshot{URL: url, Elements: inv.elements}, nil
}

// Page opens a page at url, scrapes it with the given scroll depth, and
// closes the page again. A navigation failure fails the whole call; there is
// no partial snapshot and no retry here.
func Page(ctx context.Context, launcher *browser.Launcher, url string, scrollSteps int) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	page, closePage, err := launcher.NewPage()
	if err != nil {
		return Snapshot{}, err
	}
	defer closePage()

	if err := browser.Navigate(page, url); err != nil {
		return Snapshot{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	inv := newInventory()
	for i := 0; i < scrollSteps; i++ {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		els, err := collectVisible(page)
		if err != nil {
			return Snapshot{}, err
		}
		inv.add(els)
		if err := scrollOneViewport(page); err != nil {
			return Snapshot{}, err
		}
		time.Sleep(oneShotSettleDelay)
	}
	if scrollSteps <= 0 {
		els, err := collectVisible(page)
		if err != nil {
			return Snapshot{}, err
		}
		inv.add(els)
	}
	return Snapshot{URL: url, Elements: inv.elements}, nil
}

// inventory accumulates elements across scroll passes. First occurrence of a
// key wins; later observations of the same key are dropped, not merged.
type inventory struct {
	seen     map[string]struct{}
	elements []Element
}

func newInventory() *inventory {
	return &inventory{seen: make(map[string]struct{})}
}

func (inv *inventory) add(els []Element) int {
	added := 0
	for _, el := range els {
		key := el.Key()
		if key == "" {
			continue
		}
		if _, ok := inv.seen[key]; ok {
			continue
		}
		inv.seen[key] = struct{}{}
		inv.elements = append(inv.elements, el)
		added++
	}
	return added
}

func collectVisible(page playwright.Page) ([]Element, error) {
	val, err := page.Evaluate(collectScript)
	if err != nil {
		return nil, fmt.Errorf("collect elements: %w", err)
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var els []Element
	if err := json.Unmarshal(raw, &els); err != nil {
		return nil, err
	}
	return els, nil
}

func scrollOneViewport(page playwright.Page) error {
	_, err := page.Evaluate(`() => window.scrollBy(0, window.innerHeight)`)
	if err != nil {
		return fmt.Errorf("scroll viewport: %w", err)
	}
	return nil
}

// collectScript runs in the page. It gates nodes on the interactive-element
// heuristic, skips anything rendered with a zero-size bounding box, and
// synthesizes both a css-style selector and a structural xpath (id-anchored
// when possible, positional sibling walk otherwise).
const collectScript = `() => {
	const GATE = 'a[href],button,input,select,textarea,[role="button"],[role="link"],[onclick],[tabindex]';

	function cssSelector(el) {
		let sel = el.tagName.toLowerCase();
		if (el.id) sel += '#' + el.id;
		const cn = typeof el.className === 'string' ? el.className : '';
		if (cn.trim()) sel += '.' + cn.trim().split(/\s+/).join('.');
		return sel;
	}

	function xpathSelector(node) {
		if (!node) return '';
		if (node.id) return '//*[@id="' + node.id + '"]';
		if (node === document.body) return '/html/body';
		if (!node.parentNode) return '';
		let ix = 0;
		const siblings = node.parentNode.childNodes;
		for (let i = 0; i < siblings.length; i++) {
			const sibling = siblings[i];
			if (sibling.nodeType === 1 && sibling.tagName === node.tagName) ix++;
			if (sibling === node) {
				const parent = xpathSelector(node.parentNode);
				return parent + '/' + node.tagName.toLowerCase() + '[' + ix + ']';
			}
		}
		return '';
	}

	const out = [];
	for (const el of document.querySelectorAll(GATE)) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		const attr = (name) => el.getAttribute(name) || '';
		out.push({
			tag: el.tagName.toLowerCase(),
			text: (el.innerText || '').trim(),
			id: attr('id'),
			name: attr('name'),
			type: attr('type'),
			href: attr('href'),
			role: attr('role'),
			aria_label: attr('aria-label'),
			placeholder: attr('placeholder'),
			value: attr('value'),
			classes: attr('class'),
			onclick: attr('onclick'),
			css_selector: cssSelector(el),
			xpath_selector: xpathSelector(el),
		});
	}
	return out;
}`
