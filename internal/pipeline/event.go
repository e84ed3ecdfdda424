// Package pipeline turns the subtitle packets of a demuxed track into
// recognized, timed text.
package pipeline

import (
	"time"
)

// State tracks an event through the pipeline. Transitions are
// one-directional; StateRecognized, StateSkipped and StateFailed are
// terminal.
type State int

const (
	StatePending State = iota
	StateClassified
	StateDecoded
	StateSkipped
	StatePreprocessed
	StateRecognized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateClassified:
		return "classified"
	case StateDecoded:
		return "decoded"
	case StateSkipped:
		return "skipped"
	case StatePreprocessed:
		return "preprocessed"
	case StateRecognized:
		return "recognized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Cue is the payload variant of an event: text cues carry the packet
// text, bitmap cues the raw subpicture to decode.
type Cue interface {
	isCue()
}

// TextCue is a subtitle cue already delivered as text.
type TextCue struct {
	Text string
}

// BitmapCue is a subtitle cue delivered as a compressed bitmap. Image
// is set instead of Payload for codecs whose decoding is stateful and
// happens while the track is scanned; Err carries a decode failure from
// that scan.
type BitmapCue struct {
	Payload []byte
	Image   *DecodedBitmap
	Err     error
}

func (TextCue) isCue()   {}
func (BitmapCue) isCue() {}

// Event is one subtitle cue travelling through the pipeline.
type Event struct {
	Index int
	Start time.Duration
	End   time.Duration
	Cue   Cue
}

// Recognized is the successful terminal outcome of one event.
type Recognized struct {
	Index      int
	Start      time.Duration
	End        time.Duration
	Text       string
	Confidence float64
}
