package action

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// A resolver is one strategy for mapping a target string to elements. The
// chain is an ordered list; each entry is tried only when every earlier
// applicable entry produced zero matches.
type resolver struct {
	name    string
	applies func(kind, target string) bool
	locate  func(page playwright.Page, target string) playwright.Locator
}

// hasSelectorSyntax reports whether target looks like a literal CSS/XPath
// selector rather than a bare identifier or label.
func hasSelectorSyntax(target string) bool {
	return strings.ContainsAny(target, "#.[> ")
}

func bareTarget(kind, target string) bool {
	return !hasSelectorSyntax(target)
}

func clickOrFill(kind string) bool {
	return kind == Click || kind == Fill
}

var resolvers = []resolver{
	{
		name:    "literal-selector",
		applies: func(kind, target string) bool { return hasSelectorSyntax(target) },
		locate: func(page playwright.Page, target string) playwright.Locator {
			return page.Locator(target)
		},
	},
	{
		name:    "id",
		applies: bareTarget,
		locate: func(page playwright.Page, target string) playwright.Locator {
			return page.Locator("#" + target)
		},
	},
	{
		name:    "name-attribute",
		applies: bareTarget,
		locate: func(page playwright.Page, target string) playwright.Locator {
			return page.Locator(fmt.Sprintf("[name='%s']", target))
		},
	},
	{
		name:    "placeholder",
		applies: func(kind, target string) bool { return bareTarget(kind, target) && clickOrFill(kind) },
		locate: func(page playwright.Page, target string) playwright.Locator {
			return page.Locator(fmt.Sprintf("[placeholder='%s']", target))
		},
	},
	{
		name:    "label-text",
		applies: func(kind, target string) bool { return bareTarget(kind, target) && clickOrFill(kind) },
		locate: func(page playwright.Page, target string) playwright.Locator {
			pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(target))
			if err != nil {
				return nil
			}
			return page.GetByLabel(pattern)
		},
	},
	{
		name:    "label-sibling-input",
		applies: func(kind, target string) bool { return bareTarget(kind, target) && clickOrFill(kind) },
		locate: func(page playwright.Page, target string) playwright.Locator {
			return page.Locator(fmt.Sprintf("label:has-text('%s') + input", target))
		},
	},
	{
		// Pragmatic concession to inconsistent search-button markup in the
		// wild: aria-label variants, a legacy id, and an accessible-name
		// match, tried in that order.
		name:    "search-button-fallback",
		applies: func(kind, target string) bool { return kind == Click },
		locate:  locateSearchFallback,
	},
}

func locateSearchFallback(page playwright.Page, target string) playwright.Locator {
	candidates := []playwright.Locator{
		page.Locator(`[aria-label="Search"]`),
		page.Locator(`[aria-label="search"]`),
		page.Locator("#search-icon-legacy"),
		page.GetByRole("button", playwright.PageGetByRoleOptions{
			Name: regexp.MustCompile(`(?i)search`),
		}),
	}
	for _, loc := range candidates {
		if n, err := loc.Count(); err == nil && n > 0 {
			return loc
		}
	}
	return nil
}

// Plan returns the resolver names that apply to an action of the given kind
// and target, in the order they will be tried. The fallback order is data,
// not branching, so it stays inspectable and testable.
func Plan(kind, target string) []string {
	var names []string
	for _, r := range resolvers {
		if r.applies(kind, target) {
			names = append(names, r.name)
		}
	}
	return names
}

// resolveTarget walks the chain and returns the first matched element along
// with the name of the strategy that found it, or nil when the full chain
// produced nothing.
func resolveTarget(page playwright.Page, kind, target string) (playwright.Locator, string) {
	for _, r := range resolvers {
		if !r.applies(kind, target) {
			continue
		}
		loc := r.locate(page, target)
		if loc == nil {
			continue
		}
		n, err := loc.Count()
		if err != nil || n == 0 {
			continue
		}
		return loc.First(), r.name
	}
	return nil, ""
}
