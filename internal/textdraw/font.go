// Package textdraw measures and draws watermark text with OpenType/TrueType fonts.
package textdraw

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

const dpi = 72

// Loader parses font files and builds faces of a requested size.
// Parsed files are kept for the lifetime of the Loader.
type Loader struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

func NewLoader() *Loader {
	return &Loader{fonts: make(map[string]*opentype.Font)}
}

// LoadFont implements layout.FontLoader.
func (l *Loader) LoadFont(path string, size int) (layout.Font, error) {
	return l.Face(path, size)
}

// Face returns a face of the font at path with the given pixel size.
func (l *Loader) Face(path string, size int) (*Face, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font size %d must be positive", size)
	}
	f, err := l.parsed(path)
	if err != nil {
		return nil, err
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build face %q size %d: %w", path, size, err)
	}
	return &Face{face: face, size: size}, nil
}

func (l *Loader) parsed(path string) (*opentype.Font, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("font path is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.fonts[path]; ok {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font file %s: %w", path, err)
	}
	f, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font file %s: %w", path, err)
	}
	l.fonts[path] = f
	return f, nil
}

// parse accepts single fonts and collections (.ttc), taking the first face of a collection.
func parse(data []byte) (*opentype.Font, error) {
	f, err := opentype.Parse(data)
	if err == nil {
		return f, nil
	}
	coll, cErr := opentype.ParseCollection(data)
	if cErr != nil || coll.NumFonts() == 0 {
		return nil, err
	}
	return coll.Font(0)
}

// Face is a sized font face. It implements layout.Font.
type Face struct {
	face font.Face
	size int
}

func (f *Face) Size() int { return f.size }

// Measure returns the advance width and line height of text.
// Whitespace-only text has no visible extent and measures zero wide.
func (f *Face) Measure(text string) (int, int) {
	m := f.face.Metrics()
	height := (m.Ascent + m.Descent).Ceil()
	if strings.TrimSpace(text) == "" {
		return 0, height
	}
	return font.MeasureString(f.face, text).Ceil(), height
}
