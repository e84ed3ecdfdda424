package imageproc

import (
	"image"
	"image/color"
)

// cropMargin is the border of background pixels kept around the glyph
// bounding box. Recognition engines behave badly on text that touches the
// image edge.
const cropMargin = 4

// CropToContent returns a copy of img tightened to the bounding box of its
// foreground pixels, with a small background margin. An image with no
// foreground pixels crops to an empty image.
func CropToContent(img *image.Gray) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	x1, y1 := w, h
	x2, y2 := -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.GrayAt(img.Rect.Min.X+x, img.Rect.Min.Y+y).Y == Background {
				continue
			}
			if x < x1 {
				x1 = x
			}
			if x > x2 {
				x2 = x
			}
			if y < y1 {
				y1 = y
			}
			if y > y2 {
				y2 = y
			}
		}
	}

	if x2 < 0 {
		// all background
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}

	cw := x2 - x1 + 1
	ch := y2 - y1 + 1
	out := image.NewGray(image.Rect(0, 0, cw+2*cropMargin, ch+2*cropMargin))
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			v := img.GrayAt(img.Rect.Min.X+x1+x, img.Rect.Min.Y+y1+y)
			out.SetGray(x+cropMargin, y+cropMargin, color.Gray{Y: v.Y})
		}
	}
	return out
}

// IsBlank reports whether the image contains no foreground pixels.
func IsBlank(img *image.Gray) bool {
	for _, v := range img.Pix {
		if v != Background {
			return false
		}
	}
	return true
}
