// Package layout sizes the watermark font from the image width and places the
// watermark lines inside the image for one of nine anchor positions.
package layout

import "errors"

var (
	ErrInvalidWatermark error = errors.New("invalid watermark text")                 // empty set, zero width, size <= 0
	ErrFontLoad         error = errors.New("failed to load font")                    // font path missing or unreadable
	ErrInvalidAnchor    error = errors.New("invalid anchor position")                // component outside {-1,0,1}
	ErrInvalidConfig    error = errors.New("invalid watermark configuration")        // ratio, alpha, color, probe size
	ErrBlockOverflow    error = errors.New("watermark block is taller than image") // strict layout only
)
