package action

import "fmt"

const (
	defaultPressKey     = "Enter"
	defaultScrollDir    = "down"
	defaultScrollAmount = 300
)

// Normalize validates action kinds and fills schema defaults: press without a
// key gets Enter, scroll without direction/amount gets down/300, fill without
// a value gets the empty string. A missing click/fill target is not rejected
// here; it surfaces as a per-step "Missing target" failure during execution.
func Normalize(specs []Spec) ([]Spec, error) {
	out := make([]Spec, 0, len(specs))
	for i, s := range specs {
		switch s.Action {
		case Click, Fill, Press, Scroll, Navigate:
		default:
			return nil, fmt.Errorf("action %d: invalid kind %q", i, s.Action)
		}
		if s.Action == Press && s.Key == "" {
			s.Key = defaultPressKey
		}
		if s.Action == Scroll {
			if s.Direction == "" {
				s.Direction = defaultScrollDir
			}
			if s.Amount == 0 {
				s.Amount = defaultScrollAmount
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// translateKey maps the recorder's literal "Space" back to the character the
// keyboard API expects.
func translateKey(key string) string {
	if key == "Space" {
		return " "
	}
	return key
}

// scrollDelta maps a direction and pixel amount onto window deltas.
func scrollDelta(direction string, amount int) (dx, dy int) {
	switch direction {
	case "up":
		return 0, -amount
	case "left":
		return -amount, 0
	case "right":
		return amount, 0
	default: // down
		return 0, amount
	}
}
