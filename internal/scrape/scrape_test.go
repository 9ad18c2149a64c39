package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementKey(t *testing.T) {
	withXPath := Element{CSSSelector: "input#email", XPathSelector: `//*[@id="email"]`}
	assert.Equal(t, `//*[@id="email"]`, withXPath.Key())

	cssOnly := Element{CSSSelector: "button.sign-in"}
	assert.Equal(t, "button.sign-in", cssOnly.Key())
}

func TestInventoryFirstSeenWins(t *testing.T) {
	inv := newInventory()

	first := []Element{
		{Tag: "input", Text: "", CSSSelector: "input#email", XPathSelector: `//*[@id="email"]`},
		{Tag: "button", Text: "Sign in", CSSSelector: "button.sign-in", XPathSelector: "/html/body/button[1]"},
	}
	added := inv.add(first)
	require.Equal(t, 2, added)

	// second pass re-observes the same nodes with mutated text; duplicates
	// are dropped, not merged
	second := []Element{
		{Tag: "input", Text: "changed", CSSSelector: "input#email", XPathSelector: `//*[@id="email"]`},
		{Tag: "a", Text: "Help", CSSSelector: "a.help", XPathSelector: "/html/body/a[1]"},
	}
	added = inv.add(second)
	require.Equal(t, 1, added)

	require.Len(t, inv.elements, 3)
	assert.Equal(t, "", inv.elements[0].Text, "first observation must win")
	assert.Equal(t, "Help", inv.elements[2].Text)
}

func TestInventoryKeyFallsBackToCSS(t *testing.T) {
	inv := newInventory()
	inv.add([]Element{
		{Tag: "button", CSSSelector: "button.search"},
		{Tag: "button", CSSSelector: "button.search"},
	})
	assert.Len(t, inv.elements, 1)
}

func TestInventorySkipsRecordsWithoutIdentity(t *testing.T) {
	inv := newInventory()
	added := inv.add([]Element{{Tag: "div", Text: "anonymous"}})
	assert.Zero(t, added)
	assert.Empty(t, inv.elements)
}

func TestInventoryNoDuplicateKeys(t *testing.T) {
	inv := newInventory()
	inv.add([]Element{
		{CSSSelector: "a.one", XPathSelector: "/html/body/a[1]"},
		{CSSSelector: "a.two", XPathSelector: "/html/body/a[2]"},
		{CSSSelector: "a.one", XPathSelector: "/html/body/a[1]"},
	})

	seen := map[string]bool{}
	for _, el := range inv.elements {
		require.False(t, seen[el.Key()], "duplicate key %q in one snapshot", el.Key())
		seen[el.Key()] = true
	}
}
