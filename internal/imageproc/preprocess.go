package imageproc

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Interpolation selects the upscaling filter.
type Interpolation string

const (
	InterpNearest Interpolation = "nearest"
	InterpLinear  Interpolation = "linear"
)

const (
	// Foreground and Background are the only two values a preprocessed
	// image may contain.
	Foreground uint8 = 255
	Background uint8 = 0
)

// ErrInvalidConfig is returned when preprocessing options fail validation.
// Option validation happens at startup, before any image is touched.
var ErrInvalidConfig = fmt.Errorf("invalid preprocess config")

// Options control how a decoded subtitle raster is turned into a binary
// image suitable for text recognition.
//
// Bitmap subtitles are rendered at low native resolution, so UpscaleFactor
// defaults above 1 to bring glyphs up to a size recognition engines handle
// reliably.
type Options struct {
	// TransparencyThreshold: pixels with alpha below this are background.
	TransparencyThreshold uint8
	// BinarizationThreshold: luminance at or above this is foreground.
	BinarizationThreshold uint8
	// UpscaleFactor scales both dimensions; must be positive.
	UpscaleFactor float64
	// Interpolation is the upscaling filter, nearest or linear.
	Interpolation Interpolation
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		TransparencyThreshold: 12,
		BinarizationThreshold: 140,
		UpscaleFactor:         3,
		Interpolation:         InterpNearest,
	}
}

// Validate checks option values and reports ErrInvalidConfig on bad input.
func (o Options) Validate() error {
	if o.UpscaleFactor <= 0 || math.IsNaN(o.UpscaleFactor) || math.IsInf(o.UpscaleFactor, 0) {
		return fmt.Errorf("%w: upscale factor must be positive, got %v", ErrInvalidConfig, o.UpscaleFactor)
	}
	switch o.Interpolation {
	case InterpNearest, InterpLinear:
	default:
		return fmt.Errorf("%w: unknown interpolation %q", ErrInvalidConfig, o.Interpolation)
	}
	return nil
}

// Preprocess converts a decoded RGBA subtitle raster into a two-valued
// grayscale image. The transform is deterministic and touches no external
// state: identical input and options always produce identical output.
//
// Stages, in order: transparent pixels become background, the rest are
// reduced to BT.601 luminance, luminance is thresholded into
// foreground/background, and the binary image is upscaled.
func Preprocess(src *image.RGBA, opts Options) (*image.Gray, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	binary := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			if c.A < opts.TransparencyThreshold {
				continue // background, already zero
			}
			luma := luminance(c)
			if luma >= opts.BinarizationThreshold {
				binary.SetGray(x, y, color.Gray{Y: Foreground})
			}
		}
	}

	return upscale(binary, opts), nil
}

// luminance reduces a pixel to BT.601 luma (0.299 R + 0.587 G + 0.114 B).
func luminance(c color.RGBA) uint8 {
	l := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	if l > 255 {
		l = 255
	}
	return uint8(l + 0.5)
}

func upscale(src *image.Gray, opts Options) *image.Gray {
	if opts.UpscaleFactor == 1 {
		return src
	}

	srcW, srcH := src.Rect.Dx(), src.Rect.Dy()
	dstW := int(math.Round(float64(srcW) * opts.UpscaleFactor))
	dstH := int(math.Round(float64(srcH) * opts.UpscaleFactor))
	dst := image.NewGray(image.Rect(0, 0, dstW, dstH))
	if srcW == 0 || srcH == 0 {
		return dst
	}

	switch opts.Interpolation {
	case InterpLinear:
		scaleLinear(dst, src)
	default:
		scaleNearest(dst, src)
	}
	return dst
}

func scaleNearest(dst, src *image.Gray) {
	srcW, srcH := src.Rect.Dx(), src.Rect.Dy()
	dstW, dstH := dst.Rect.Dx(), dst.Rect.Dy()

	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			dst.SetGray(x, y, src.GrayAt(sx, sy))
		}
	}
}

// scaleLinear does bilinear interpolation, then re-binarizes at the
// midpoint so the two-class invariant survives the filter.
func scaleLinear(dst, src *image.Gray) {
	srcW, srcH := src.Rect.Dx(), src.Rect.Dy()
	dstW, dstH := dst.Rect.Dx(), dst.Rect.Dy()

	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)

	for y := 0; y < dstH; y++ {
		sy := (float64(y)+0.5)*yRatio - 0.5
		y0 := int(math.Floor(sy))
		fy := sy - float64(y0)
		y1 := y0 + 1
		y0 = clampIndex(y0, srcH)
		y1 = clampIndex(y1, srcH)

		for x := 0; x < dstW; x++ {
			sx := (float64(x)+0.5)*xRatio - 0.5
			x0 := int(math.Floor(sx))
			fx := sx - float64(x0)
			x1 := x0 + 1
			x0 = clampIndex(x0, srcW)
			x1 = clampIndex(x1, srcW)

			v00 := float64(src.GrayAt(x0, y0).Y)
			v10 := float64(src.GrayAt(x1, y0).Y)
			v01 := float64(src.GrayAt(x0, y1).Y)
			v11 := float64(src.GrayAt(x1, y1).Y)

			top := v00*(1-fx) + v10*fx
			bottom := v01*(1-fx) + v11*fx
			v := top*(1-fy) + bottom*fy

			out := Background
			if v >= 128 {
				out = Foreground
			}
			dst.SetGray(x, y, color.Gray{Y: out})
		}
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
