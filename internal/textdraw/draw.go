package textdraw

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Draw renders every placement of plan onto dst. Placement coordinates are the
// top-left corner of the line box, the baseline sits one ascent lower.
func Draw(dst draw.Image, face *Face, plan layout.RenderPlan, fill color.Color) {
	ascent := face.face.Metrics().Ascent
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fill),
		Face: face.face,
	}
	for _, p := range plan {
		d.Dot = fixed.Point26_6{
			X: fixed.I(p.X),
			Y: fixed.I(p.Y) + ascent,
		}
		d.DrawString(p.Text)
	}
}
