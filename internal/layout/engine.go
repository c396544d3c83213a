package layout

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/floats"
)

// Placement is one watermark line with its top-left corner and measured size.
type Placement struct {
	Text          string
	X, Y          int
	Width, Height int
}

// RenderPlan lists placements in the order the lines were given.
type RenderPlan []Placement

type Option func(*settings)

type settings struct {
	strict bool
}

// WithStrictFit makes ComputePositions fail with ErrBlockOverflow when the
// stacked lines are taller than the image. By default they just overflow.
func WithStrictFit() Option {
	return func(s *settings) {
		s.strict = true
	}
}

// ComputePositions stacks lines top to bottom and aligns the block inside an
// image of the given size according to anchor.
func ComputePositions(size image.Point, face Font, lines []string, anchor Anchor, opts ...Option) (RenderPlan, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	if err := anchor.Validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInvalidWatermark)
	}

	plan := make(RenderPlan, len(lines))
	heights := make([]float64, len(lines))
	for i, line := range lines {
		w, h := face.Measure(line)
		plan[i] = Placement{Text: line, Width: w, Height: h}
		heights[i] = float64(h)
	}
	total := int(floats.Sum(heights))

	if s.strict && total > size.Y {
		return nil, fmt.Errorf("%w: block height %d, image height %d", ErrBlockOverflow, total, size.Y)
	}

	top := align(anchor.Y, size.Y, total)
	for i := range plan {
		plan[i].X = align(anchor.X, size.X, plan[i].Width)
		plan[i].Y = top
		top += plan[i].Height
	}

	return plan, nil
}

// align returns the offset of an extent inside space for direction d.
func align(d, space, extent int) int {
	switch d {
	case -1:
		return 0
	case 1:
		return space - extent
	default:
		// shift floors negative halves as well, / would truncate toward zero
		return (space - extent) >> 1
	}
}
