package vobsub

import (
	"encoding/binary"
	"image"
	"image/color"
	"time"

	"github.com/cockroachdb/errors"
)

// Subpicture is one decoded VobSub cue: the rendered raster plus the
// display window offsets carried by the control sequence. Offsets are
// relative to the packet presentation timestamp.
type Subpicture struct {
	Image       *image.RGBA
	StartOffset time.Duration
	StopOffset  time.Duration
	HasStop     bool
	Forced      bool
}

// run is one run-length code: a pixel count and a 2-bit color.
type run struct {
	length int
	color  byte
}

// DecodeSubpicture decodes a raw subpicture packet against the track
// palette. The packet layout is a 2-byte total size, a 2-byte control
// area offset, RLE pixel data, and the control sequence chain.
func DecodeSubpicture(palette *Palette, packet []byte) (*Subpicture, error) {
	if len(packet) < 4 {
		return nil, errors.Wrap(ErrInvalidFrameHeader, "packet shorter than header")
	}
	controlOffset := binary.BigEndian.Uint16(packet[2:])

	control, err := parseControl(packet, int(controlOffset))
	if err != nil {
		return nil, err
	}

	img, err := renderRLE(palette, control, packet)
	if err != nil {
		return nil, err
	}

	return &Subpicture{
		Image:       img,
		StartOffset: control.startOffset,
		StopOffset:  control.stopOffset,
		HasStop:     control.hasStop,
		Forced:      control.force,
	}, nil
}

func renderRLE(palette *Palette, control *controlData, packet []byte) (*image.RGBA, error) {
	if control.colorPalette == nil || control.alphaPalette == nil {
		return nil, errors.Wrap(ErrInvalidFrame, "control data has no palette commands")
	}
	if control.coords == nil || control.rleOffsets == nil {
		return nil, errors.Wrap(ErrInvalidFrame, "control data has no geometry commands")
	}

	width, height := control.coords.width(), control.coords.height()
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidFrame, "bad display window %dx%d", width, height)
	}
	for _, offset := range control.rleOffsets {
		if int(offset) >= len(packet) {
			return nil, errors.Wrap(ErrInvalidFrame, "RLE offset beyond packet")
		}
	}

	// Scanlines are interlaced into two half-height fields: the stream at
	// the first offset carries even rows, the second carries odd rows.
	fields := [2]*nibbleStream{
		newNibbleStream(packet[control.rleOffsets[0]:]),
		newNibbleStream(packet[control.rleOffsets[1]:]),
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		stream := fields[y%2]
		if err := decodeLine(img, y, width, stream, palette, control); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func decodeLine(img *image.RGBA, y, width int, stream *nibbleStream, palette *Palette, control *controlData) error {
	x := 0
	for x < width {
		r, err := readRun(stream)
		if err != nil {
			return err
		}
		if r.length == 0 {
			// End-of-line marker: fill the remainder of the line.
			r.length = width - x
		}
		if r.length > width-x {
			return errors.Wrapf(ErrMalformedRunLength, "run of %d overflows line %d at column %d", r.length, y, x)
		}

		// The 2-bit run color indexes the cue's 4-entry palettes in
		// reverse, which then select the track palette entry and alpha.
		colorIdx := control.colorPalette[3-r.color]
		if colorIdx >= PaletteSize {
			return errors.Wrapf(ErrInvalidFrame, "palette index %d out of range", colorIdx)
		}
		alpha := control.alphaPalette[3-r.color]
		rgb := palette[colorIdx]
		pixel := color.RGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: alpha * 17} // expand 4-bit alpha

		for i := 0; i < r.length; i++ {
			img.SetRGBA(x, y, pixel)
			x++
		}
	}

	// Each line must terminate on a byte boundary; padding nibbles are
	// required to be zero.
	if pad, skipped := stream.align(); skipped && pad != 0 {
		return errors.Wrapf(ErrMalformedRunLength, "line %d terminator not byte aligned", y)
	}
	return nil
}

// readRun reads one variable-length RLE code: 1 nibble for short runs,
// up to 4 nibbles for long ones, with a zero length signalling
// end-of-line.
func readRun(stream *nibbleStream) (run, error) {
	n1, ok := stream.next()
	if !ok {
		return run{}, errors.Wrap(ErrMalformedRunLength, "truncated RLE stream")
	}

	var n uint16
	switch {
	case n1 >= 0x4:
		n = uint16(n1)
	case n1 >= 0x1:
		n2, ok := stream.next()
		if !ok {
			return run{}, errors.Wrap(ErrMalformedRunLength, "truncated RLE stream")
		}
		n = uint16(n1)<<4 | uint16(n2)
	default: // n1 == 0
		n2, ok := stream.next()
		if !ok {
			return run{}, errors.Wrap(ErrMalformedRunLength, "truncated RLE stream")
		}
		if n2 >= 0x4 {
			n3, ok := stream.next()
			if !ok {
				return run{}, errors.Wrap(ErrMalformedRunLength, "truncated RLE stream")
			}
			n = uint16(n2)<<4 | uint16(n3)
		} else {
			n3, ok := stream.next()
			if !ok {
				return run{}, errors.Wrap(ErrMalformedRunLength, "truncated RLE stream")
			}
			n4, ok := stream.next()
			if !ok {
				return run{}, errors.Wrap(ErrMalformedRunLength, "truncated RLE stream")
			}
			n = uint16(n2)<<8 | uint16(n3)<<4 | uint16(n4)
		}
	}

	return run{length: int(n >> 2), color: byte(n & 0x3)}, nil
}
