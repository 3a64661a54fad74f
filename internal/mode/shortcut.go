package mode

import (
	"strconv"
	"strings"
)

// ShortcutKind identifies a speaker switching trigger.
type ShortcutKind string

const (
	ShortcutCycle ShortcutKind = "cycle"
	ShortcutJump  ShortcutKind = "jump"
)

// Shortcut is a switching trigger. Index is 1-based and only used by jumps.
type Shortcut struct {
	Kind  ShortcutKind `json:"kind"`
	Index int          `json:"index,omitempty"`
}

// ParseKey maps keyboard triggers: "Tab" cycles, "Alt+1".."Alt+9" jump.
func ParseKey(key string) (Shortcut, bool) {
	if key == "Tab" {
		return Shortcut{Kind: ShortcutCycle}, true
	}
	digit, ok := strings.CutPrefix(key, "Alt+")
	if !ok || len(digit) != 1 {
		return Shortcut{}, false
	}
	n, err := strconv.Atoi(digit)
	if err != nil || n < 1 {
		return Shortcut{}, false
	}
	return Shortcut{Kind: ShortcutJump, Index: n}, true
}

// ParseDTMF maps telephone keypad digits: '*' and '#' cycle, '1'..'9' jump.
func ParseDTMF(digit byte) (Shortcut, bool) {
	switch {
	case digit == '*' || digit == '#':
		return Shortcut{Kind: ShortcutCycle}, true
	case digit >= '1' && digit <= '9':
		return Shortcut{Kind: ShortcutJump, Index: int(digit - '0')}, true
	default:
		return Shortcut{}, false
	}
}

// Apply runs the shortcut against the switcher.
func (sc Shortcut) Apply(s *Switcher) bool {
	switch sc.Kind {
	case ShortcutCycle:
		return s.Next()
	case ShortcutJump:
		return s.JumpTo(sc.Index)
	default:
		return false
	}
}
