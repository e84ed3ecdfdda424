package persistence

import (
	"time"

	"github.com/subforge/subex/internal/subtitle"
)

// UnitCheckpoint is the recognized text of one completed work unit,
// persisted so an interrupted extraction resumes without re-running OCR
// on finished units.
type UnitCheckpoint struct {
	JobID           string
	UnitStart       int
	UnitEnd         int
	RecognizedLines []string
	UpdatedAt       time.Time
}

type SubtitleCacheEntry struct {
	CacheKey  string
	MediaPath string
	JobID     string
	PathHint  string
	File      subtitle.File
	IsTemp    bool
	UpdatedAt time.Time
}

// MediaMetaCache records which subtitle languages a media file already
// has, so repeated library scans skip probing unchanged files.
type MediaMetaCache struct {
	MediaPath         string
	TargetLanguage    string
	ExternalLanguages []string
	EmbeddedLanguages []string
	HasTargetExternal bool
	HasTargetEmbedded bool
	ExpiresAt         time.Time
	UpdatedAt         time.Time
}
