package layout

import (
	"fmt"
	"strings"
)

// Anchor is a placement direction: X is -1/0/+1 for left/center/right,
// Y is -1/0/+1 for top/center/bottom.
type Anchor struct {
	X, Y int
}

var (
	Center      = Anchor{0, 0}
	Top         = Anchor{0, -1}
	Bottom      = Anchor{0, 1}
	Left        = Anchor{-1, 0}
	Right       = Anchor{1, 0}
	TopLeft     = Anchor{-1, -1}
	TopRight    = Anchor{1, -1}
	BottomLeft  = Anchor{-1, 1}
	BottomRight = Anchor{1, 1}
)

var anchorNames = map[string]Anchor{
	"top-left":     TopLeft,
	"top":          Top,
	"top-right":    TopRight,
	"left":         Left,
	"center":       Center,
	"right":        Right,
	"bottom-left":  BottomLeft,
	"bottom":       Bottom,
	"bottom-right": BottomRight,
}

// NewAnchor validates the components and builds an Anchor.
func NewAnchor(x, y int) (Anchor, error) {
	a := Anchor{X: x, Y: y}
	if err := a.Validate(); err != nil {
		return Anchor{}, err
	}
	return a, nil
}

func (a Anchor) Validate() error {
	if !unit(a.X) || !unit(a.Y) {
		return fmt.Errorf("%w: (%d,%d)", ErrInvalidAnchor, a.X, a.Y)
	}
	return nil
}

// Combine merges two anchors component by component. Equal components are kept,
// different ones are summed, so TOP+RIGHT is the top-right corner, LEFT+RIGHT
// cancels out and TOP+TOP stays TOP.
func Combine(a, b Anchor) (Anchor, error) {
	if err := a.Validate(); err != nil {
		return Anchor{}, err
	}
	if err := b.Validate(); err != nil {
		return Anchor{}, err
	}
	return Anchor{X: merge(a.X, b.X), Y: merge(a.Y, b.Y)}, nil
}

// ParseAnchor resolves one of the nine position names ("top-left", "center", ...).
func ParseAnchor(name string) (Anchor, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	a, ok := anchorNames[key]
	if !ok {
		return Anchor{}, fmt.Errorf("%w: unknown position %q", ErrInvalidAnchor, name)
	}
	return a, nil
}

func (a Anchor) String() string {
	for name, v := range anchorNames {
		if v == a {
			return name
		}
	}
	return fmt.Sprintf("anchor(%d,%d)", a.X, a.Y)
}

func unit(v int) bool {
	return v >= -1 && v <= 1
}

func merge(a, b int) int {
	if a == b {
		return a
	}
	return a + b
}
