package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webvoice/access-assistant/internal/action"
)

func TestRecordingCaptureOrder(t *testing.T) {
	rec := &recording{}
	rec.click("button#search")
	rec.fill("input#q", "running shoes")
	rec.press("input#q", "Enter")
	rec.scroll("down", 420)

	actions := rec.snapshot()
	require.Len(t, actions, 4)
	assert.Equal(t, action.Spec{Action: action.Click, Target: "button#search"}, actions[0])
	assert.Equal(t, action.Spec{Action: action.Fill, Target: "input#q", Value: "running shoes"}, actions[1])
	assert.Equal(t, action.Spec{Action: action.Press, Target: "input#q", Key: "Enter"}, actions[2])
	assert.Equal(t, action.Spec{Action: action.Scroll, Direction: "down", Amount: 420}, actions[3])
}

func TestRecordingIgnoresEmptySelectors(t *testing.T) {
	rec := &recording{}
	rec.click("")
	rec.fill("", "text")
	rec.press("", "Enter")
	assert.Empty(t, rec.snapshot())
}

func TestRecordingSnapshotIsACopy(t *testing.T) {
	rec := &recording{}
	rec.click("a.link")
	first := rec.snapshot()
	rec.click("a.other")
	assert.Len(t, first, 1)
	assert.Len(t, rec.snapshot(), 2)
}

func TestArgCoercion(t *testing.T) {
	// binding args arrive from JS as float64
	assert.Equal(t, 420, argInt([]any{"down", float64(420)}, 1))
	assert.Equal(t, 0, argInt([]any{"down"}, 1))
	assert.Equal(t, "down", argString([]any{"down"}, 0))
	assert.Equal(t, "", argString(nil, 0))
}

func TestConsoleStopWaitsForLine(t *testing.T) {
	var out strings.Builder
	stop := ConsoleStop(strings.NewReader("\n"), &out)
	require.NoError(t, stop())
	assert.Contains(t, out.String(), "stop recording")
}
