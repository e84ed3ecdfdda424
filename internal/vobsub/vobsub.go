// Package vobsub decodes DVD subpicture (VobSub) subtitle cues: the .idx
// sidecar with the track palette and cue index, and the run-length encoded
// subpicture packets themselves.
//
// Format reference: https://sam.zoy.org/writings/dvd/subtitles/
package vobsub

import (
	"encoding/hex"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidIdx means the .idx sidecar is missing or malformed.
	ErrInvalidIdx = errors.New("invalid VobSub idx data")
	// ErrInvalidFrameHeader means the subpicture packet header is truncated.
	ErrInvalidFrameHeader = errors.New("invalid VobSub frame header")
	// ErrInvalidControl means the control sequence area is malformed.
	ErrInvalidControl = errors.New("invalid VobSub control data")
	// ErrInvalidFrame means the control data is incomplete for rendering.
	ErrInvalidFrame = errors.New("invalid VobSub frame data")
	// ErrMalformedRunLength means the RLE pixel data is corrupt: a run
	// overruns its scanline, the stream is truncated mid-line, or a line
	// terminator is not aligned to a byte boundary.
	ErrMalformedRunLength = errors.New("malformed VobSub run-length data")
)

// PaletteSize is the number of colors in a VobSub track palette.
const PaletteSize = 16

// Palette is the 16-color track palette from the .idx sidecar. Index 0 is
// conventionally the background entry. Alpha is not stored here; it comes
// per cue from the control sequence. The palette is read-only after
// construction and safe to share across concurrently decoded cues.
type Palette [PaletteSize]color.RGBA

// GrayscalePalette is the fallback for tracks without a palette: a
// linear gray ramp from black to white.
func GrayscalePalette() *Palette {
	var p Palette
	for i := range p {
		v := uint8(i * 255 / (PaletteSize - 1))
		p[i] = color.RGBA{R: v, G: v, B: v, A: 0xFF}
	}
	return &p
}

// IdxCue is one cue position from the .idx index.
type IdxCue struct {
	Start   time.Duration
	FilePos int64
}

// IdxFile is the parsed .idx sidecar.
type IdxFile struct {
	Palette  Palette
	Language string
	Cues     []IdxCue
}

// ParseIdx parses a .idx sidecar. The palette line is required; language
// and timestamp entries are kept when present.
func ParseIdx(data []byte) (*IdxFile, error) {
	idx := &IdxFile{}
	havePalette := false

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "palette":
			palette, err := ParsePalette(value)
			if err != nil {
				return nil, err
			}
			idx.Palette = *palette
			havePalette = true
		case "id":
			// "id: en, index: 0"
			lang, _, _ := strings.Cut(value, ",")
			if idx.Language == "" {
				idx.Language = strings.TrimSpace(lang)
			}
		case "timestamp":
			cue, err := parseIdxCue(value)
			if err != nil {
				return nil, err
			}
			idx.Cues = append(idx.Cues, cue)
		}
	}

	if !havePalette {
		return nil, errors.Wrap(ErrInvalidIdx, "no palette line")
	}
	return idx, nil
}

// ParsePalette parses the 16 comma-separated RRGGBB entries of a palette
// line.
func ParsePalette(value string) (*Palette, error) {
	segments := strings.Split(value, ",")
	if len(segments) != PaletteSize {
		return nil, errors.Wrapf(ErrInvalidIdx, "palette has %d entries, want %d", len(segments), PaletteSize)
	}

	palette := &Palette{}
	for i, segment := range segments {
		var rgb [3]byte
		if err := decodeHexRGB(strings.TrimSpace(segment), &rgb); err != nil {
			return nil, errors.Wrapf(ErrInvalidIdx, "palette entry %d: %v", i, err)
		}
		palette[i] = color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xFF}
	}
	return palette, nil
}

func decodeHexRGB(s string, out *[3]byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != 3 {
		return errors.Newf("color %q is not 3 bytes", s)
	}
	copy(out[:], raw)
	return nil
}

// parseIdxCue parses "HH:MM:SS:mmm, filepos: 0000001b4" index entries.
func parseIdxCue(value string) (IdxCue, error) {
	stamp, rest, ok := strings.Cut(value, ",")
	if !ok {
		return IdxCue{}, errors.Wrapf(ErrInvalidIdx, "timestamp entry %q", value)
	}

	start, err := parseIdxTimestamp(strings.TrimSpace(stamp))
	if err != nil {
		return IdxCue{}, err
	}

	rest = strings.TrimSpace(rest)
	posStr, found := strings.CutPrefix(rest, "filepos:")
	if !found {
		return IdxCue{}, errors.Wrapf(ErrInvalidIdx, "timestamp entry %q has no filepos", value)
	}
	pos, err := strconv.ParseInt(strings.TrimSpace(posStr), 16, 64)
	if err != nil {
		return IdxCue{}, errors.Wrapf(ErrInvalidIdx, "filepos in %q", value)
	}

	return IdxCue{Start: start, FilePos: pos}, nil
}

func parseIdxTimestamp(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return 0, errors.Wrapf(ErrInvalidIdx, "timestamp %q", s)
	}

	nums := make([]int64, 4)
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return 0, errors.Wrapf(ErrInvalidIdx, "timestamp %q", s)
		}
		nums[i] = n
	}

	return time.Duration(nums[0])*time.Hour +
		time.Duration(nums[1])*time.Minute +
		time.Duration(nums[2])*time.Second +
		time.Duration(nums[3])*time.Millisecond, nil
}
