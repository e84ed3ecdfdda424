package track

import (
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/language"

	"github.com/subforge/subex/internal/demux"
)

// ErrNoSubtitleTrack is returned when no track matches the selection.
var ErrNoSubtitleTrack = errors.New("no matching subtitle track")

// Predicate decides whether a track is eligible for extraction.
type Predicate func(demux.Track) bool

// AnySubtitle matches every subtitle track, including ones with codecs
// no extractor exists for; those fail later with ErrUnsupportedCodec so
// the caller learns about them instead of silently losing the track.
func AnySubtitle() Predicate {
	return func(t demux.Track) bool {
		return IsSubtitleCodec(t.CodecID)
	}
}

// ByKind matches supported tracks of the given kind.
func ByKind(kind Kind) Predicate {
	return func(t demux.Track) bool {
		return Classify(t.CodecID) == kind
	}
}

// ByIndex matches the track with the given ID.
func ByIndex(id int64) Predicate {
	return func(t demux.Track) bool {
		return t.ID == id && Classify(t.CodecID) != KindUnsupported
	}
}

// ByLanguage matches supported tracks whose language tag resolves to the
// same base language as lang. Track tags that fail to parse never match.
func ByLanguage(lang string) Predicate {
	want, err := language.Parse(lang)
	if err != nil {
		return func(demux.Track) bool { return false }
	}
	wantBase, _ := want.Base()

	return func(t demux.Track) bool {
		if Classify(t.CodecID) == KindUnsupported {
			return false
		}
		got, err := language.Parse(strings.TrimSpace(t.Language))
		if err != nil {
			return false
		}
		gotBase, _ := got.Base()
		return gotBase == wantBase
	}
}

// Select returns all tracks matching the predicate, in source order.
func Select(tracks []demux.Track, match Predicate) []demux.Track {
	var selected []demux.Track
	for _, t := range tracks {
		if match(t) {
			selected = append(selected, t)
		}
	}
	return selected
}

// SelectFirst returns the first matching track or ErrNoSubtitleTrack.
func SelectFirst(tracks []demux.Track, match Predicate) (demux.Track, error) {
	for _, t := range tracks {
		if match(t) {
			return t, nil
		}
	}
	return demux.Track{}, ErrNoSubtitleTrack
}
