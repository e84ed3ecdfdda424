// Package pgs decodes HDMV Presentation Graphic Stream (S_HDMV/PGS)
// subtitle cues as carried in media containers: per-packet display sets of
// palette, window, object and composition segments, rendered into raster
// images.
//
// Format reference:
// https://blog.thescorpius.com/index.php/2017/07/15/presentation-graphic-stream-sup-files-bluray-subtitle-format/
package pgs

import (
	"github.com/cockroachdb/errors"
)

// Segment type tags.
const (
	segmentPDS = 0x14 // palette definition
	segmentODS = 0x15 // object definition
	segmentPCS = 0x16 // presentation composition
	segmentWDS = 0x17 // window definition
	segmentEND = 0x80 // end of display set
)

// Composition states.
const (
	stateNormal           = 0x00
	stateAcquisitionPoint = 0x40
	stateEpochStart       = 0x80
)

// Object sequence flags.
const (
	flagFirstInSequence = 0x40
	flagLastInSequence  = 0x80
)

var (
	// ErrFormat means a segment could not be parsed.
	ErrFormat = errors.New("invalid PGS segment")
	// ErrRLEFormat means object pixel data is corrupt.
	ErrRLEFormat = errors.New("invalid PGS RLE data")
)

// lumaAlpha is one palette color: luminance plus transparency.
type lumaAlpha struct {
	y, a uint8
}

type windowDefinition struct {
	windowID      uint8
	horizontalPos uint16
	verticalPos   uint16
	width         uint16
	height        uint16
}

type paletteEntry struct {
	entryID      uint8
	luminance    uint8
	colorDiffRed uint8
	colorDiffBlu uint8
	transparency uint8
}

type paletteDefinition struct {
	paletteID uint8
	version   uint8
	entries   []paletteEntry
}

type compositionObject struct {
	objectID      uint16
	windowID      uint8
	cropped       bool
	horizontalPos uint16
	verticalPos   uint16
	cropX         uint16
	cropY         uint16
	cropWidth     uint16
	cropHeight    uint16
}

type presentationComposition struct {
	width             uint16
	height            uint16
	frameRate         uint8
	compositionNumber uint16
	state             uint8
	paletteUpdate     bool
	paletteID         uint8
	objects           []compositionObject
}

type objectDefinition struct {
	objectID uint16
	version  uint8
	sequence uint8
	width    uint16
	height   uint16
	rleData  []byte
}

type displaySet struct {
	pcs *presentationComposition
	wds []windowDefinition
	pds []paletteDefinition
	ods []objectDefinition
}

// byteReader is a cursor over a packet's bytes.
type byteReader struct {
	data   []byte
	cursor int
}

func (r *byteReader) remaining() int {
	return len(r.data) - r.cursor
}

func (r *byteReader) u8() (uint8, bool) {
	if r.remaining() < 1 {
		return 0, false
	}
	v := r.data[r.cursor]
	r.cursor++
	return v, true
}

func (r *byteReader) u16() (uint16, bool) {
	if r.remaining() < 2 {
		return 0, false
	}
	v := uint16(r.data[r.cursor])<<8 | uint16(r.data[r.cursor+1])
	r.cursor += 2
	return v, true
}

func (r *byteReader) take(n int) ([]byte, bool) {
	if n < 0 || r.remaining() < n {
		return nil, false
	}
	v := r.data[r.cursor : r.cursor+n]
	r.cursor += n
	return v, true
}

// readDisplaySet parses segments until the END segment.
func readDisplaySet(r *byteReader) (*displaySet, error) {
	set := &displaySet{}
	var currentODS *objectDefinition

	for {
		segmentType, ok := r.u8()
		if !ok {
			return nil, errors.Wrap(ErrFormat, "missing end segment")
		}
		segmentSize, ok := r.u16()
		if !ok {
			return nil, errors.Wrap(ErrFormat, "truncated segment header")
		}
		data, ok := r.take(int(segmentSize))
		if !ok {
			return nil, errors.Wrapf(ErrFormat, "segment length %d exceeds packet", segmentSize)
		}

		switch segmentType {
		case segmentPDS:
			pds, err := parsePDS(data)
			if err != nil {
				return nil, err
			}
			set.pds = append(set.pds, *pds)
		case segmentODS:
			ods, err := parseODS(data)
			if err != nil {
				return nil, err
			}
			currentODS = collectODS(set, currentODS, ods)
		case segmentPCS:
			pcs, err := parsePCS(data)
			if err != nil {
				return nil, err
			}
			set.pcs = pcs
		case segmentWDS:
			wds, err := parseWDS(data)
			if err != nil {
				return nil, err
			}
			set.wds = append(set.wds, wds...)
		case segmentEND:
			if currentODS != nil {
				set.ods = append(set.ods, *currentODS)
			}
			if set.pcs == nil {
				return nil, errors.Wrap(ErrFormat, "display set has no composition segment")
			}
			return set, nil
		default:
			return nil, errors.Wrapf(ErrFormat, "unknown segment type 0x%02x", segmentType)
		}
	}
}

// collectODS reassembles object definitions split across segments. A
// first+last segment is complete on its own; otherwise fragments
// accumulate until the last-in-sequence flag arrives.
func collectODS(set *displaySet, current *objectDefinition, next *objectDefinition) *objectDefinition {
	first := next.sequence&flagFirstInSequence != 0
	last := next.sequence&flagLastInSequence != 0

	switch {
	case first && last:
		if current != nil {
			set.ods = append(set.ods, *current)
		}
		set.ods = append(set.ods, *next)
		return nil
	case first:
		if current != nil {
			set.ods = append(set.ods, *current)
		}
		return next
	case last:
		if current != nil {
			current.rleData = append(current.rleData, next.rleData...)
			set.ods = append(set.ods, *current)
		}
		return nil
	default:
		if current != nil {
			current.rleData = append(current.rleData, next.rleData...)
		}
		return current
	}
}

func parsePDS(data []byte) (*paletteDefinition, error) {
	r := &byteReader{data: data}
	pds := &paletteDefinition{}

	var ok bool
	if pds.paletteID, ok = r.u8(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated palette definition")
	}
	if pds.version, ok = r.u8(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated palette definition")
	}

	// entries are 5 bytes each, as many as fit
	for {
		entryID, ok := r.u8()
		if !ok {
			return pds, nil
		}
		raw, ok := r.take(4)
		if !ok {
			return nil, errors.Wrap(ErrFormat, "truncated palette entry")
		}
		pds.entries = append(pds.entries, paletteEntry{
			entryID:      entryID,
			luminance:    raw[0],
			colorDiffRed: raw[1],
			colorDiffBlu: raw[2],
			transparency: raw[3],
		})
	}
}

func parseODS(data []byte) (*objectDefinition, error) {
	r := &byteReader{data: data}
	ods := &objectDefinition{}

	var ok bool
	if ods.objectID, ok = r.u16(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated object definition")
	}
	if ods.version, ok = r.u8(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated object definition")
	}
	if ods.sequence, ok = r.u8(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated object definition")
	}

	lengthBytes, ok := r.take(3)
	if !ok {
		return nil, errors.Wrap(ErrFormat, "truncated object definition")
	}
	// 24-bit length includes the 4 bytes of width and height
	dataLength := uint32(lengthBytes[0])<<16 | uint32(lengthBytes[1])<<8 | uint32(lengthBytes[2])
	if dataLength >= 4 {
		dataLength -= 4
	} else {
		dataLength = 0
	}

	if ods.width, ok = r.u16(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated object definition")
	}
	if ods.height, ok = r.u16(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated object definition")
	}

	rle, ok := r.take(int(dataLength))
	if !ok {
		return nil, errors.Wrap(ErrFormat, "object data length exceeds segment")
	}
	ods.rleData = append([]byte(nil), rle...)
	return ods, nil
}

func parsePCS(data []byte) (*presentationComposition, error) {
	r := &byteReader{data: data}
	pcs := &presentationComposition{}

	var ok bool
	if pcs.width, ok = r.u16(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}
	if pcs.height, ok = r.u16(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}
	if pcs.frameRate, ok = r.u8(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}
	if pcs.compositionNumber, ok = r.u16(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}

	state, ok := r.u8()
	if !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}
	switch state {
	case stateNormal, stateAcquisitionPoint, stateEpochStart:
		pcs.state = state
	default:
		return nil, errors.Wrapf(ErrFormat, "unknown composition state 0x%02x", state)
	}

	paletteUpdate, ok := r.u8()
	if !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}
	pcs.paletteUpdate = paletteUpdate > 0

	if pcs.paletteID, ok = r.u8(); !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}
	objectCount, ok := r.u8()
	if !ok {
		return nil, errors.Wrap(ErrFormat, "truncated composition segment")
	}

	for i := 0; i < int(objectCount); i++ {
		obj := compositionObject{}
		if obj.objectID, ok = r.u16(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated composition object")
		}
		if obj.windowID, ok = r.u8(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated composition object")
		}
		croppedFlag, ok := r.u8()
		if !ok {
			return nil, errors.Wrap(ErrFormat, "truncated composition object")
		}
		obj.cropped = croppedFlag&0x80 > 0
		if obj.horizontalPos, ok = r.u16(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated composition object")
		}
		if obj.verticalPos, ok = r.u16(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated composition object")
		}
		if obj.cropped {
			if obj.cropX, ok = r.u16(); !ok {
				return nil, errors.Wrap(ErrFormat, "truncated composition object crop")
			}
			if obj.cropY, ok = r.u16(); !ok {
				return nil, errors.Wrap(ErrFormat, "truncated composition object crop")
			}
			if obj.cropWidth, ok = r.u16(); !ok {
				return nil, errors.Wrap(ErrFormat, "truncated composition object crop")
			}
			if obj.cropHeight, ok = r.u16(); !ok {
				return nil, errors.Wrap(ErrFormat, "truncated composition object crop")
			}
		}
		pcs.objects = append(pcs.objects, obj)
	}

	return pcs, nil
}

func parseWDS(data []byte) ([]windowDefinition, error) {
	r := &byteReader{data: data}

	count, ok := r.u8()
	if !ok {
		return nil, errors.Wrap(ErrFormat, "truncated window segment")
	}

	windows := make([]windowDefinition, 0, count)
	for i := 0; i < int(count); i++ {
		w := windowDefinition{}
		if w.windowID, ok = r.u8(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated window definition")
		}
		if w.horizontalPos, ok = r.u16(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated window definition")
		}
		if w.verticalPos, ok = r.u16(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated window definition")
		}
		if w.width, ok = r.u16(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated window definition")
		}
		if w.height, ok = r.u16(); !ok {
			return nil, errors.Wrap(ErrFormat, "truncated window definition")
		}
		windows = append(windows, w)
	}
	return windows, nil
}
