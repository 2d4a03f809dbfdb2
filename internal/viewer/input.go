package viewer

import (
	"fmt"
	"strings"
)

// Layout selects how the client arranges its views of the scene.
type Layout int

const (
	LayoutOnlyMainView Layout = iota
	LayoutMainAndTop
	LayoutFourViews

	// LayoutCount is the number of layouts; cycling wraps modulo it.
	LayoutCount
)

func (l Layout) String() string {
	switch l {
	case LayoutOnlyMainView:
		return "only_main_view"
	case LayoutMainAndTop:
		return "main_and_top"
	case LayoutFourViews:
		return "four_views"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Next returns the layout after l, wrapping around.
func (l Layout) Next() Layout {
	return (l + 1) % LayoutCount
}

// Key identifies a keyboard key. Printable keys use their upper-case ASCII
// code.
type Key int

const (
	KeyUnknown Key = 0
	KeyB       Key = 'B'
	KeyH       Key = 'H'
	KeyK       Key = 'K'
	KeyEscape  Key = 256
)

// ParseKey maps a browser KeyboardEvent.key value to a Key.
func ParseKey(s string) Key {
	switch {
	case s == "Escape" || s == "Esc":
		return KeyEscape
	case len(s) == 1:
		c := strings.ToUpper(s)[0]
		if c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			return Key(c)
		}
	}
	return KeyUnknown
}

func (k Key) String() string {
	switch {
	case k == KeyEscape:
		return "Escape"
	case k >= '0' && k <= 'Z':
		return string(rune(k))
	default:
		return "unknown"
	}
}

// event is an input event sent by a client.
type event struct {
	Type string `json:"type"` // "key" or "close"
	Key  string `json:"key,omitempty"`
}
