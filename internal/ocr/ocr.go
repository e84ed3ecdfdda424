// Package ocr turns preprocessed subtitle bitmaps into text.
package ocr

import (
	"context"
	"image"
)

// Result is the recognized text of one subtitle bitmap. Confidence is
// the engine's mean word confidence in [0, 1]; a blank bitmap yields an
// empty Text with zero Confidence.
type Result struct {
	Text       string
	Confidence float64
}

// Engine recognizes text in a binarized grayscale image.
type Engine interface {
	Recognize(ctx context.Context, img *image.Gray) (Result, error)
	Close() error
}
