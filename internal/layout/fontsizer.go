package layout

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultProbeSize is the font size text is measured at before scaling.
const DefaultProbeSize = 50

// Font measures text rendered with one concrete face and size.
type Font interface {
	Measure(text string) (width, height int)
}

// FontLoader builds a Font from a font resource at the given size.
type FontLoader interface {
	LoadFont(path string, size int) (Font, error)
}

// FontSpec is a font resource resolved to a concrete size for one image.
type FontSpec struct {
	Path string
	Size int
	Face Font
}

// ResolveFont picks the font size at which the widest line takes ratio of
// imageWidth. Widths are measured once at probeSize and scaled linearly.
func ResolveFont(loader FontLoader, path string, lines []string, probeSize, imageWidth int, ratio float64) (FontSpec, error) {
	if len(lines) == 0 {
		return FontSpec{}, fmt.Errorf("%w: no lines", ErrInvalidWatermark)
	}
	if ratio <= 0 || ratio >= 1 {
		return FontSpec{}, fmt.Errorf("%w: width ratio %v must be in (0,1)", ErrInvalidConfig, ratio)
	}
	if imageWidth <= 0 {
		return FontSpec{}, fmt.Errorf("%w: image width %d", ErrInvalidConfig, imageWidth)
	}
	if probeSize <= 0 {
		return FontSpec{}, fmt.Errorf("%w: probe size %d", ErrInvalidConfig, probeSize)
	}

	probe, err := loadFont(loader, path, probeSize)
	if err != nil {
		return FontSpec{}, err
	}

	widths := make([]float64, len(lines))
	for i, line := range lines {
		w, _ := probe.Measure(line)
		widths[i] = float64(w)
	}
	maxW := floats.Max(widths)
	if maxW <= 0 {
		return FontSpec{}, fmt.Errorf("%w: lines have zero width", ErrInvalidWatermark)
	}

	size := int(math.Floor(float64(imageWidth) * ratio * float64(probeSize) / maxW))
	if size <= 0 {
		return FontSpec{}, fmt.Errorf("%w: resolved font size %d for image width %d and ratio %v", ErrInvalidWatermark, size, imageWidth, ratio)
	}

	face, err := loadFont(loader, path, size)
	if err != nil {
		return FontSpec{}, err
	}
	return FontSpec{Path: path, Size: size, Face: face}, nil
}

func loadFont(loader FontLoader, path string, size int) (Font, error) {
	f, err := loader.LoadFont(path, size)
	if err != nil {
		return nil, fmt.Errorf("%w %q at size %d: %w", ErrFontLoad, path, size, err)
	}
	return f, nil
}
