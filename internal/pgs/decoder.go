package pgs

import (
	"image"
	"image/color"

	"github.com/cockroachdb/errors"
)

// Decoder renders PGS display sets into raster images. It keeps the
// per-epoch window, palette and object tables the format requires between
// packets, so one Decoder must only be fed packets of a single track, in
// stream order.
type Decoder struct {
	runningPCS *presentationComposition
	windows    map[uint8]windowDefinition
	palettes   map[uint8]map[uint8]lumaAlpha
	objects    map[uint16]objectDefinition
}

func NewDecoder() *Decoder {
	return &Decoder{
		windows:  make(map[uint8]windowDefinition),
		palettes: make(map[uint8]map[uint8]lumaAlpha),
		objects:  make(map[uint16]objectDefinition),
	}
}

// Decode processes one packet's display set and renders the resulting
// composition. A display set that carries no renderable composition (for
// example a bare epoch start clearing the screen) returns a nil image and
// no error.
func (d *Decoder) Decode(packet []byte) (*image.RGBA, error) {
	set, err := readDisplaySet(&byteReader{data: packet})
	if err != nil {
		return nil, err
	}

	if set.pcs.state == stateEpochStart {
		// new epoch, previous tables no longer apply
		clear(d.windows)
		clear(d.palettes)
		clear(d.objects)
	}

	for _, pds := range set.pds {
		stored, ok := d.palettes[pds.paletteID]
		if !ok {
			stored = make(map[uint8]lumaAlpha)
			d.palettes[pds.paletteID] = stored
		}
		for _, entry := range pds.entries {
			stored[entry.entryID] = lumaAlpha{y: entry.luminance, a: entry.transparency}
		}
	}
	for _, wds := range set.wds {
		d.windows[wds.windowID] = wds
	}
	for _, ods := range set.ods {
		d.objects[ods.objectID] = ods
	}

	switch set.pcs.state {
	case stateAcquisitionPoint:
		if d.runningPCS != nil {
			d.runningPCS.compositionNumber = set.pcs.compositionNumber
			d.runningPCS.objects = append(d.runningPCS.objects, set.pcs.objects...)
		}
	default:
		d.runningPCS = set.pcs
	}

	if d.runningPCS == nil {
		return nil, nil
	}
	return d.render(d.runningPCS)
}

func (d *Decoder) render(pcs *presentationComposition) (*image.RGBA, error) {
	palette, ok := d.palettes[pcs.paletteID]
	if !ok {
		return nil, errors.Wrapf(ErrFormat, "palette %d missing in composition %d", pcs.paletteID, pcs.compositionNumber)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(pcs.width), int(pcs.height)))
	for _, obj := range pcs.objects {
		def, ok := d.objects[obj.objectID]
		if !ok {
			return nil, errors.Wrapf(ErrFormat, "object %d missing in composition %d", obj.objectID, pcs.compositionNumber)
		}
		window, ok := d.windows[obj.windowID]
		if !ok {
			return nil, errors.Wrapf(ErrFormat, "window %d missing in composition %d", obj.windowID, pcs.compositionNumber)
		}

		var target *imageWindow
		if obj.cropped {
			target = newCroppedImageWindow(img,
				int(window.horizontalPos)+int(obj.horizontalPos),
				int(window.verticalPos)+int(obj.verticalPos),
				int(obj.cropWidth), int(obj.cropHeight),
				int(obj.cropX), int(obj.cropY))
		} else {
			target = newImageWindow(img,
				int(window.horizontalPos)+int(obj.horizontalPos),
				int(window.verticalPos)+int(obj.verticalPos),
				int(window.width), int(window.height))
		}
		if err := renderObject(target, palette, def.rleData); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// renderObject decodes object RLE data into the window. Codes: a non-zero
// leader byte is a single pixel in that color; a zero leader starts an
// escape whose follower selects end-of-line or a short/long run of color
// zero or an explicit color.
func renderObject(window *imageWindow, palette map[uint8]lumaAlpha, data []byte) error {
	r := &byteReader{data: data}
	for {
		leader, ok := r.u8()
		if !ok {
			return nil
		}
		if leader != 0 {
			c, ok := palette[leader]
			if !ok {
				return errors.Wrapf(ErrRLEFormat, "color %d missing from palette", leader)
			}
			window.pushPixel(c)
			continue
		}

		follower, ok := r.u8()
		if !ok {
			return errors.Wrap(ErrRLEFormat, "truncated escape code")
		}
		if follower == 0 {
			window.endLine()
			continue
		}

		code := follower & 0xC0
		length := int(follower & 0x3F)
		if code == 0x40 || code == 0xC0 {
			cont, ok := r.u8()
			if !ok {
				return errors.Wrap(ErrRLEFormat, "truncated long run")
			}
			length = length<<8 | int(cont)
		}

		pixel := lumaAlpha{}
		if code == 0x80 || code == 0xC0 {
			colorID, ok := r.u8()
			if !ok {
				return errors.Wrap(ErrRLEFormat, "truncated color run")
			}
			pixel, ok = palette[colorID]
			if !ok {
				return errors.Wrapf(ErrRLEFormat, "color %d missing from palette", colorID)
			}
		}
		for i := 0; i < length; i++ {
			window.pushPixel(pixel)
		}
	}
}

// imageWindow writes gray+alpha pixels cursor-style into a region of a
// larger composition image, dropping anything outside the region.
type imageWindow struct {
	img        *image.RGBA
	xCursor    int
	yCursor    int
	x, y       int
	width      int
	height     int
	hasCrop    bool
	cropX      int
	cropY      int
}

func newImageWindow(img *image.RGBA, x, y, width, height int) *imageWindow {
	return &imageWindow{img: img, x: x, y: y, width: width, height: height}
}

func newCroppedImageWindow(img *image.RGBA, x, y, width, height, cropX, cropY int) *imageWindow {
	return &imageWindow{img: img, x: x, y: y, width: width, height: height, hasCrop: true, cropX: cropX, cropY: cropY}
}

func (w *imageWindow) putPixel(x, y int, pixel lumaAlpha) {
	if w.hasCrop {
		if x < w.cropX || y < w.cropY {
			return
		}
		x -= w.cropX
		y -= w.cropY
	}
	// Out-of-window pixels come from data we have no control over; drop
	// them rather than fail the whole cue.
	if x < 0 || y < 0 || x >= w.width || y >= w.height {
		return
	}
	x += w.x
	y += w.y
	if x >= w.img.Rect.Dx() || y >= w.img.Rect.Dy() {
		return
	}
	if pixel.a != 0 {
		w.img.SetRGBA(x, y, color.RGBA{R: pixel.y, G: pixel.y, B: pixel.y, A: pixel.a})
	}
}

func (w *imageWindow) pushPixel(pixel lumaAlpha) {
	w.putPixel(w.xCursor, w.yCursor, pixel)
	w.xCursor++
}

func (w *imageWindow) endLine() {
	w.xCursor = 0
	w.yCursor++
}
