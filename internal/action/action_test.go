package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webvoice/access-assistant/internal/scrape"
)

func TestNormalizeDefaults(t *testing.T) {
	specs, err := Normalize([]Spec{
		{Action: Fill, Target: "input#email"},
		{Action: Press},
		{Action: Scroll},
	})
	require.NoError(t, err)

	assert.Equal(t, "", specs[0].Value)
	assert.Equal(t, "Enter", specs[1].Key)
	assert.Equal(t, "down", specs[2].Direction)
	assert.Equal(t, 300, specs[2].Amount)
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	specs, err := Normalize([]Spec{
		{Action: Press, Key: "Tab"},
		{Action: Scroll, Direction: "left", Amount: 120},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tab", specs[0].Key)
	assert.Equal(t, "left", specs[1].Direction)
	assert.Equal(t, 120, specs[1].Amount)
}

func TestNormalizeRejectsInvalidKind(t *testing.T) {
	_, err := Normalize([]Spec{{Action: "hover", Target: "#x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid kind")
}

func TestNormalizeAcceptsNavigate(t *testing.T) {
	specs, err := Normalize([]Spec{{Action: Navigate, Target: "https://example.com"}})
	require.NoError(t, err)
	assert.Equal(t, Navigate, specs[0].Action)
}

func TestTranslateKey(t *testing.T) {
	assert.Equal(t, " ", translateKey("Space"))
	assert.Equal(t, "Enter", translateKey("Enter"))
}

func TestScrollDelta(t *testing.T) {
	cases := []struct {
		direction string
		amount    int
		dx, dy    int
	}{
		{"down", 300, 0, 300},
		{"up", 300, 0, -300},
		{"left", 120, -120, 0},
		{"right", 120, 120, 0},
	}
	for _, tc := range cases {
		dx, dy := scrollDelta(tc.direction, tc.amount)
		assert.Equal(t, tc.dx, dx, tc.direction)
		assert.Equal(t, tc.dy, dy, tc.direction)
	}
}

func TestStatusForSuccessIffAllSteps(t *testing.T) {
	all := []StepResult{{Success: true}, {Success: true}}
	assert.Equal(t, StatusSuccess, statusFor(all))

	mixed := []StepResult{{Success: true}, {Success: false}}
	assert.Equal(t, StatusError, statusFor(mixed))

	assert.Equal(t, StatusSuccess, statusFor(nil))
}

func TestPlanOrderForBareTarget(t *testing.T) {
	plan := Plan(Fill, "email")
	assert.Equal(t, []string{
		"id",
		"name-attribute",
		"placeholder",
		"label-text",
		"label-sibling-input",
	}, plan)
}

func TestPlanLiteralSelectorShortCircuitsFallbacks(t *testing.T) {
	assert.Equal(t, []string{"literal-selector"}, Plan(Fill, "input#email"))
	// a literal click target still gets the search-button safety net
	assert.Equal(t, []string{"literal-selector", "search-button-fallback"}, Plan(Click, "button.sign-in"))
}

func TestPlanPressSkipsLabelStrategies(t *testing.T) {
	assert.Equal(t, []string{"id", "name-attribute"}, Plan(Press, "q"))
}

func TestHasSelectorSyntax(t *testing.T) {
	for _, target := range []string{"#id", ".cls", "[name='q']", "div > a", "label text"} {
		assert.True(t, hasSelectorSyntax(target), target)
	}
	assert.False(t, hasSelectorSyntax("email"))
}

func TestTargetsCovered(t *testing.T) {
	snap := scrape.Snapshot{
		URL: "https://example.com",
		Elements: []scrape.Element{
			{Tag: "input", ID: "email", CSSSelector: "input#email"},
			{Tag: "button", Text: "Sign in", CSSSelector: "button.sign-in", AriaLabel: "Sign in"},
		},
	}

	covered := []Spec{
		{Action: Fill, Target: "input#email", Value: "a@b.com"},
		{Action: Click, Target: "button.sign-in"},
	}
	assert.True(t, targetsCovered(snap, covered))

	missing := []Spec{{Action: Click, Target: "#does-not-exist"}}
	assert.False(t, targetsCovered(snap, missing))

	// label text resolves case-insensitively, partial
	byLabel := []Spec{{Action: Click, Target: "sign"}}
	assert.True(t, targetsCovered(snap, byLabel))

	// no remaining click/fill actions: the scroll is presumed intentional
	scrollOnly := []Spec{{Action: Scroll, Direction: "down", Amount: 300}}
	assert.False(t, targetsCovered(snap, scrollOnly))
}
