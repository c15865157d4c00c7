package provider

import (
	"fmt"
	"strings"
)

// Orientation is the layout direction of a panel and of the plugins in it.
type Orientation int32

const (
	// Horizontal lays plugins out left to right.
	Horizontal Orientation = iota
	// Vertical lays plugins out top to bottom.
	Vertical
)

func (o Orientation) String() string {
	switch o {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return fmt.Sprintf("Orientation(%d)", int32(o))
	}
}

// ParseOrientation parses the textual form produced by Orientation.String.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(s) {
	case "horizontal", "h":
		return Horizontal, nil
	case "vertical", "v":
		return Vertical, nil
	}
	return Horizontal, fmt.Errorf("invalid orientation %q", s)
}

// ScreenPosition describes the screen edge (or floating state) a panel window
// occupies. Plugins use it to decide where popups should open.
type ScreenPosition int32

// Screen positions. The numbering is part of the wire format.
const (
	PositionNone ScreenPosition = iota

	// top
	PositionNWH
	PositionN
	PositionNEH

	// left
	PositionNWV
	PositionW
	PositionSWV

	// right
	PositionNEV
	PositionE
	PositionSEV

	// bottom
	PositionSWH
	PositionS
	PositionSEH

	// floating
	PositionFloatingH
	PositionFloatingV
)

var positionNames = [...]string{
	PositionNone:      "none",
	PositionNWH:       "nw-h",
	PositionN:         "n",
	PositionNEH:       "ne-h",
	PositionNWV:       "nw-v",
	PositionW:         "w",
	PositionSWV:       "sw-v",
	PositionNEV:       "ne-v",
	PositionE:         "e",
	PositionSEV:       "se-v",
	PositionSWH:       "sw-h",
	PositionS:         "s",
	PositionSEH:       "se-h",
	PositionFloatingH: "floating-h",
	PositionFloatingV: "floating-v",
}

func (p ScreenPosition) String() string {
	if p.Valid() {
		return positionNames[p]
	}
	return fmt.Sprintf("ScreenPosition(%d)", int32(p))
}

// ParseScreenPosition parses the textual form produced by ScreenPosition.String.
func ParseScreenPosition(s string) (ScreenPosition, error) {
	s = strings.ToLower(s)
	for i, name := range positionNames {
		if name == s {
			return ScreenPosition(i), nil
		}
	}
	return PositionNone, fmt.Errorf("invalid screen position %q", s)
}

// Valid reports whether p is one of the named positions.
func (p ScreenPosition) Valid() bool {
	return p >= PositionNone && p <= PositionFloatingV
}

// IsHorizontal reports whether a panel at p lays its plugins out horizontally.
func (p ScreenPosition) IsHorizontal() bool {
	return p <= PositionNEH || (p >= PositionSWH && p <= PositionFloatingH)
}

// IsFloating reports whether p is not attached to a screen edge.
func (p ScreenPosition) IsFloating() bool {
	return p >= PositionFloatingH || p == PositionNone
}

// IsTop reports whether p is above the center of the screen.
func (p ScreenPosition) IsTop() bool { return p >= PositionNWH && p <= PositionNEH }

// IsLeft reports whether p is left of the center of the screen.
func (p ScreenPosition) IsLeft() bool { return p >= PositionNWV && p <= PositionSWV }

// IsRight reports whether p is right of the center of the screen.
func (p ScreenPosition) IsRight() bool { return p >= PositionNEV && p <= PositionSEV }

// IsBottom reports whether p is below the center of the screen.
func (p ScreenPosition) IsBottom() bool { return p >= PositionSWH && p <= PositionSEH }

// Orientation returns the orientation a panel at p has.
func (p ScreenPosition) Orientation() Orientation {
	if p.IsHorizontal() {
		return Horizontal
	}
	return Vertical
}
