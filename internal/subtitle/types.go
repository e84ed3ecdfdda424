package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Line represents a single subtitle cue
type Line struct {
	Index      int           // cue index, 1-based
	StartTime  time.Duration // start time
	EndTime    time.Duration // end time
	Text       string        // cue text, possibly multi-line
	Confidence float64       // OCR confidence in [0, 1], 1 for text tracks
}

// File represents a subtitle document
type File struct {
	Lines    []Line
	Language language.Tag
	Format   string // e.g. SRT
}

// Reader is the interface for reading subtitle files
type Reader interface {
	Read(path string) (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, subtitle *File) error
}
