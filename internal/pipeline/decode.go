package pipeline

import (
	"image"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/subforge/subex/internal/demux"
	"github.com/subforge/subex/internal/pgs"
	"github.com/subforge/subex/internal/vobsub"
)

// DecodedBitmap is the raster produced by a bitmap codec decoder,
// together with the display window offsets relative to the packet
// timestamp. A zero StopOffset with HasStop unset means the cue carries
// no explicit stop time.
type DecodedBitmap struct {
	Image       *image.RGBA
	StartOffset time.Duration
	StopOffset  time.Duration
	HasStop     bool
}

// vobsubDecoder decodes independent subpicture packets against a shared
// read-only palette. Safe for concurrent use.
type vobsubDecoder struct {
	palette *vobsub.Palette
}

func (d *vobsubDecoder) decode(payload []byte) (*DecodedBitmap, error) {
	palette := d.palette
	if palette == nil {
		palette = vobsub.GrayscalePalette()
	}
	sub, err := vobsub.DecodeSubpicture(palette, payload)
	if err != nil {
		return nil, err
	}
	return &DecodedBitmap{
		Image:       sub.Image,
		StartOffset: sub.StartOffset,
		StopOffset:  sub.StopOffset,
		HasStop:     sub.HasStop,
	}, nil
}

// pgsScanner decodes PGS display sets while the track is scanned. The
// decoder keeps epoch state across packets, so decoding happens
// sequentially before events fan out to workers.
type pgsScanner struct {
	decoder *pgs.Decoder
}

func newPGSScanner() *pgsScanner {
	return &pgsScanner{decoder: pgs.NewDecoder()}
}

func (s *pgsScanner) decode(packet *demux.Packet) (*DecodedBitmap, error) {
	img, err := s.decoder.Decode(packet.Payload)
	if err != nil {
		return nil, err
	}
	if img == nil {
		// display set without a visible composition, nothing to OCR
		return nil, nil
	}
	return &DecodedBitmap{Image: img}, nil
}

// classifyDecodeError maps a decoder error to its failure kind.
func classifyDecodeError(err error) FailureKind {
	if errors.Is(err, vobsub.ErrMalformedRunLength) {
		return FailureMalformedRunLength
	}
	return FailureBitmapDecode
}
