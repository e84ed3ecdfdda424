// Package track classifies and selects subtitle tracks from a demuxed
// media source.
package track

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind groups subtitle codecs by how their payload is extracted.
type Kind int

const (
	// KindUnsupported marks codecs the extractor cannot handle.
	KindUnsupported Kind = iota
	// KindText covers codecs whose packets already carry text.
	KindText
	// KindBitmap covers codecs whose packets carry rendered images
	// and need OCR.
	KindBitmap
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBitmap:
		return "bitmap"
	default:
		return "unsupported"
	}
}

// ErrUnsupportedCodec is returned when a selected track cannot be
// extracted.
var ErrUnsupportedCodec = errors.New("unsupported subtitle codec")

var textCodecs = map[string]struct{}{
	"S_TEXT/UTF8":   {},
	"S_TEXT/ASCII":  {},
	"S_TEXT/SSA":    {},
	"S_TEXT/ASS":    {},
	"S_TEXT/WEBVTT": {},
	"subrip":        {},
	"srt":           {},
	"ssa":           {},
	"ass":           {},
	"webvtt":        {},
	"mov_text":      {},
}

var bitmapCodecs = map[string]struct{}{
	"S_VOBSUB":          {},
	"S_HDMV/PGS":        {},
	"dvd_subtitle":      {},
	"dvdsub":            {},
	"hdmv_pgs_subtitle": {},
}

// IsSubtitleCodec reports whether the codec identifier belongs to the
// subtitle family at all, supported or not. Matroska subtitle codec IDs
// start with "S_"; ffmpeg names are matched against the known sets plus
// a few text formats no extractor exists for.
func IsSubtitleCodec(codecID string) bool {
	if Classify(codecID) != KindUnsupported {
		return true
	}
	if strings.HasPrefix(codecID, "S_") {
		return true
	}
	switch strings.ToLower(codecID) {
	case "eia_608", "microdvd", "sami", "realtext", "subviewer", "xsub":
		return true
	}
	return false
}

// Classify maps a codec identifier to its extraction kind. Matroska
// codec IDs are matched case-sensitively, ffmpeg codec names
// case-insensitively.
func Classify(codecID string) Kind {
	if _, ok := textCodecs[codecID]; ok {
		return KindText
	}
	if _, ok := bitmapCodecs[codecID]; ok {
		return KindBitmap
	}
	lower := strings.ToLower(codecID)
	if _, ok := textCodecs[lower]; ok {
		return KindText
	}
	if _, ok := bitmapCodecs[lower]; ok {
		return KindBitmap
	}
	return KindUnsupported
}
