// Package speech reads guide text aloud through an external TTS command.
package speech

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Speaker voices text for the user. Speaking is best effort and must never
// block or fail a request, so implementations return immediately.
type Speaker interface {
	Speak(text string)
}

// Command shells out to a TTS binary such as espeak or say. Playback runs in
// the background; failures are logged and otherwise ignored.
type Command struct {
	name   string
	args   []string
	logger zerolog.Logger
}

// NewCommand splits spec into the binary and fixed arguments, e.g.
// "espeak -s 150". The text to speak is appended as the final argument.
func NewCommand(spec string, logger zerolog.Logger) *Command {
	fields := strings.Fields(spec)
	c := &Command{logger: logger}
	if len(fields) > 0 {
		c.name = fields[0]
		c.args = fields[1:]
	}
	return c
}

func (c *Command) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" || c.name == "" {
		return
	}
	args := append(append([]string(nil), c.args...), text)
	go func() {
		cmd := exec.CommandContext(context.Background(), c.name, args...)
		if err := cmd.Run(); err != nil {
			c.logger.Warn().Err(err).Str("engine", c.name).Msg("speech playback failed")
		}
	}()
}

// Nop is for headless deployments and tests.
type Nop struct{}

func (Nop) Speak(string) {}
