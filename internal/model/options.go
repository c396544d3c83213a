package model

import (
	"fmt"
	"image/color"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/UnendingLoop/TextWatermark/internal/layout"
)

const (
	DefaultRatio   = 0.5
	DefaultColor   = "#0000FF64"
	DefaultAnchor  = "center"
	DefaultQuality = 95
)

// AllowedExt - расширения файлов, которые обрабатываются при обходе директории
var AllowedExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// WatermarkOptions - полный набор параметров отрисовки, передается явно в каждый вызов
type WatermarkOptions struct {
	Lines     []string
	Ratio     float64
	Color     color.NRGBA
	Anchor    layout.Anchor
	FontPath  string
	ProbeSize int
	Strict    bool
	Quality   int
}

func (o WatermarkOptions) Validate() error {
	if len(o.Lines) == 0 {
		return fmt.Errorf("%w: %w", layout.ErrInvalidWatermark, ErrEmptyText)
	}
	if err := ValidateRatio(o.Ratio); err != nil {
		return err
	}
	if err := o.Anchor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(o.FontPath) == "" {
		return fmt.Errorf("%w: font path is required", layout.ErrInvalidConfig)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("%w: jpeg quality %d must be in [1,100]", layout.ErrInvalidConfig, o.Quality)
	}
	return nil
}

// RawOptions - параметры в текстовом виде (форма запроса, env)
type RawOptions struct {
	Lines  []string
	Ratio  string
	Color  string
	Alpha  string
	Anchor string
}

// ParseOptions валидирует текстовые параметры и подставляет дефолты для пустых значений.
// FontPath, ProbeSize и Quality заполняет вызывающий.
func ParseOptions(raw RawOptions) (WatermarkOptions, error) {
	opts := WatermarkOptions{Lines: raw.Lines, Ratio: DefaultRatio}

	if len(raw.Lines) == 0 {
		return WatermarkOptions{}, ErrEmptyText
	}

	if s := strings.TrimSpace(raw.Ratio); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return WatermarkOptions{}, fmt.Errorf("%w: ratio %q: %w", layout.ErrInvalidConfig, raw.Ratio, err)
		}
		opts.Ratio = r
	}
	if err := ValidateRatio(opts.Ratio); err != nil {
		return WatermarkOptions{}, err
	}

	c := raw.Color
	if strings.TrimSpace(c) == "" {
		c = DefaultColor
	}
	col, err := ParseHexColor(c)
	if err != nil {
		return WatermarkOptions{}, err
	}
	if s := strings.TrimSpace(raw.Alpha); s != "" {
		a, err := strconv.Atoi(s)
		if err != nil {
			return WatermarkOptions{}, fmt.Errorf("%w: alpha %q: %w", layout.ErrInvalidConfig, raw.Alpha, err)
		}
		if col, err = WithAlpha(col, a); err != nil {
			return WatermarkOptions{}, err
		}
	}
	opts.Color = col

	a := raw.Anchor
	if strings.TrimSpace(a) == "" {
		a = DefaultAnchor
	}
	if opts.Anchor, err = layout.ParseAnchor(a); err != nil {
		return WatermarkOptions{}, err
	}

	return opts, nil
}

func ValidateRatio(r float64) error {
	if r <= 0 || r >= 1 {
		return fmt.Errorf("%w: width ratio %v must be in (0,1)", layout.ErrInvalidConfig, r)
	}
	return nil
}

// WithAlpha заменяет альфа-канал цвета, alpha должна быть в [0,255]
func WithAlpha(c color.NRGBA, alpha int) (color.NRGBA, error) {
	if alpha < 0 || alpha > 255 {
		return color.NRGBA{}, fmt.Errorf("%w: alpha %d must be in [0,255]", layout.ErrInvalidConfig, alpha)
	}
	c.A = uint8(alpha)
	return c, nil
}

// ParseHexColor разбирает #RGB, #RRGGBB и #RRGGBBAA; без альфы цвет непрозрачный
func ParseHexColor(s string) (color.NRGBA, error) {
	str := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(str) == 3 {
		str = string([]byte{str[0], str[0], str[1], str[1], str[2], str[2]})
	}
	if len(str) != 6 && len(str) != 8 {
		return color.NRGBA{}, fmt.Errorf("%w: malformed color %q", layout.ErrInvalidConfig, s)
	}

	v, err := strconv.ParseUint(str, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: malformed color %q", layout.ErrInvalidConfig, s)
	}
	if len(str) == 6 {
		v = v<<8 | 0xff
	}

	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

// FormatHexColor - обратная операция к ParseHexColor, всегда #RRGGBBAA
func FormatHexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

func IsAllowedExt(path string) bool {
	return AllowedExt[strings.ToLower(filepath.Ext(path))]
}

// RawOptions восстанавливает параметры отрисовки, сохраненные в задаче
func (j Job) RawOptions() RawOptions {
	return RawOptions{
		Lines:  j.Lines,
		Ratio:  strconv.FormatFloat(j.Ratio, 'f', -1, 64),
		Color:  j.Color,
		Anchor: j.Anchor,
	}
}
