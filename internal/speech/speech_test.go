package speech

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewCommandSplitsSpec(t *testing.T) {
	c := NewCommand("espeak -s 150", zerolog.Nop())
	assert.Equal(t, "espeak", c.name)
	assert.Equal(t, []string{"-s", "150"}, c.args)
}

func TestEmptySpecIsInert(t *testing.T) {
	c := NewCommand("  ", zerolog.Nop())
	assert.Equal(t, "", c.name)
	// must not panic or spawn anything
	c.Speak("hello")
}

func TestEmptyTextIsIgnored(t *testing.T) {
	c := NewCommand("espeak", zerolog.Nop())
	c.Speak("   ")
}
