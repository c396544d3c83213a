// Package imageproc applies text watermarks to images: font sizing, layout, drawing and compositing.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/UnendingLoop/TextWatermark/internal/textdraw"
	"github.com/disintegration/imaging"
)

type Renderer struct {
	fonts *textdraw.Loader
}

func NewRenderer(fonts *textdraw.Loader) *Renderer {
	return &Renderer{fonts: fonts}
}

// Apply draws the watermark lines onto a transparent layer and composites it over img.
func (r *Renderer) Apply(img image.Image, opts model.WatermarkOptions) (*image.NRGBA, layout.RenderPlan, error) {
	if img == nil {
		return nil, nil, errors.New("nil image provided")
	}
	bounds := img.Bounds()
	size := bounds.Size()

	probe := opts.ProbeSize
	if probe == 0 {
		probe = layout.DefaultProbeSize
	}

	resolved, err := layout.ResolveFont(r.fonts, opts.FontPath, opts.Lines, probe, size.X, opts.Ratio)
	if err != nil {
		return nil, nil, err
	}
	face, ok := resolved.Face.(*textdraw.Face)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected font type %T", resolved.Face)
	}

	var layoutOpts []layout.Option
	if opts.Strict {
		layoutOpts = append(layoutOpts, layout.WithStrictFit())
	}
	plan, err := layout.ComputePositions(size, face, opts.Lines, opts.Anchor, layoutOpts...)
	if err != nil {
		return nil, nil, err
	}

	// прозрачный слой под текст размером с исходник
	overlay := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	textdraw.Draw(overlay, face, plan, opts.Color)

	return imaging.Overlay(img, overlay, bounds.Min, 1.0), plan, nil
}

// Process decodes an image from r, watermarks it and encodes the result to w in format.
func (r *Renderer) Process(src io.Reader, dst io.Writer, opts model.WatermarkOptions, format imaging.Format) error {
	if src == nil {
		return errors.New("nil-reader baseIMG provided")
	}

	base, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode base image: %w", err)
	}

	result, _, err := r.Apply(base, opts)
	if err != nil {
		return err
	}

	if err := imaging.Encode(dst, result, format, encodeOptions(opts)...); err != nil {
		return fmt.Errorf("encode result image: %w", err)
	}
	return nil
}

// Watermarker is the in-memory variant of Process used by the queue worker.
func (r *Renderer) Watermarker(b io.Reader, opts model.WatermarkOptions, format imaging.Format) (io.Reader, int64, error) {
	var buf bytes.Buffer
	if err := r.Process(b, &buf, opts, format); err != nil {
		return nil, 0, err
	}
	return &buf, int64(buf.Len()), nil
}

func encodeOptions(opts model.WatermarkOptions) []imaging.EncodeOption {
	q := opts.Quality
	if q == 0 {
		q = model.DefaultQuality
	}
	return []imaging.EncodeOption{imaging.JPEGQuality(q)}
}
