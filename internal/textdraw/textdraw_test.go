package textdraw

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func writeFont(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "goregular.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o644))
	return path
}

func TestLoader_Face(t *testing.T) {
	path := writeFont(t)
	l := NewLoader()

	small, err := l.Face(path, 20)
	require.NoError(t, err)
	big, err := l.Face(path, 40)
	require.NoError(t, err)
	require.Equal(t, 40, big.Size())

	sw, sh := small.Measure("watermark")
	bw, bh := big.Measure("watermark")
	require.Greater(t, sw, 0)
	require.Greater(t, sh, 0)
	require.InEpsilon(t, 2*sw, bw, 0.1)
	require.InEpsilon(t, 2*sh, bh, 0.1)
}

func TestLoader_Errors(t *testing.T) {
	l := NewLoader()

	_, err := l.Face("", 10)
	require.Error(t, err)

	_, err = l.Face(filepath.Join(t.TempDir(), "missing.ttf"), 10)
	require.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.ttf")
	require.NoError(t, os.WriteFile(junk, []byte("not a font"), 0o644))
	_, err = l.Face(junk, 10)
	require.Error(t, err)

	_, err = l.Face(writeFont(t), 0)
	require.Error(t, err)
}

func TestFace_MeasureBlank(t *testing.T) {
	face, err := NewLoader().Face(writeFont(t), 30)
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\t"} {
		w, h := face.Measure(text)
		require.Zero(t, w)
		require.Greater(t, h, 0)
	}
}

func TestResolveFontWithRealFace(t *testing.T) {
	path := writeFont(t)
	l := NewLoader()

	resolved, err := layout.ResolveFont(l, path, []string{"Sample watermark"}, layout.DefaultProbeSize, 1200, 0.5)
	require.NoError(t, err)

	w, _ := resolved.Face.Measure("Sample watermark")
	require.InEpsilon(t, 600, w, 0.05)

	_, err = layout.ResolveFont(l, path, []string{""}, layout.DefaultProbeSize, 1200, 0.5)
	require.ErrorIs(t, err, layout.ErrInvalidWatermark)

	_, err = layout.ResolveFont(l, "/no/such/font.ttf", []string{"x"}, layout.DefaultProbeSize, 1200, 0.5)
	require.ErrorIs(t, err, layout.ErrFontLoad)
}

func TestDraw(t *testing.T) {
	face, err := NewLoader().Face(writeFont(t), 32)
	require.NoError(t, err)

	dst := image.NewNRGBA(image.Rect(0, 0, 400, 200))
	plan, err := layout.ComputePositions(dst.Bounds().Size(), face, []string{"Hello", "World"}, layout.TopLeft)
	require.NoError(t, err)

	Draw(dst, face, plan, color.NRGBA{R: 255, A: 255})

	inside, outside := 0, 0
	block := image.Rect(0, 0, max(plan[0].Width, plan[1].Width)+2, plan[1].Y+plan[1].Height+2)
	for y := 0; y < 200; y++ {
		for x := 0; x < 400; x++ {
			if dst.NRGBAAt(x, y).A == 0 {
				continue
			}
			if image.Pt(x, y).In(block) {
				inside++
			} else {
				outside++
			}
		}
	}
	require.Greater(t, inside, 0)
	require.Zero(t, outside)
}
