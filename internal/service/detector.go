package service

import (
	"context"
	"time"

	"github.com/subforge/subex/internal/persistence"
	"github.com/subforge/subex/internal/track"
	"github.com/subforge/subex/pkg/log"
)

const (
	probeTimeout      = 30 * time.Second
	mediaMetaCacheTTL = 24 * time.Hour
)

// detectEmbedded reports whether a media file carries embedded subtitle
// tracks and whether one of them already serves the target language.
// Probe results are cached in the store so repeated scans do not re-exec
// ffprobe for unchanged files.
func (s *ExtractService) detectEmbedded(mediaPath string) (bool, bool, []string) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	targetBase, _ := s.cfg.Extract.TargetLanguage.Base()
	target := targetBase.String()

	if meta, ok, err := s.store.GetMediaMetaCache(ctx, mediaPath, target, time.Now()); err == nil && ok {
		return len(meta.EmbeddedLanguages) > 0, meta.HasTargetEmbedded, meta.EmbeddedLanguages
	} else if err != nil {
		log.Warn("Failed to read media meta cache for %s: %v", mediaPath, err)
	}

	tracks, err := s.probe.Probe(ctx, mediaPath)
	if err != nil {
		log.Warn("Failed to probe %s: %v", mediaPath, err)
		return false, false, nil
	}

	languages := make([]string, 0, len(tracks))
	hasTarget := false
	for _, t := range tracks {
		languages = append(languages, t.Language)
		// only a text track already satisfies the target language;
		// bitmap tracks are what extraction is for
		if track.Classify(t.CodecID) == track.KindText && track.ByLanguage(target)(t) {
			hasTarget = true
		}
	}

	if err := s.store.PutMediaMetaCache(ctx, persistence.MediaMetaCache{
		MediaPath:         mediaPath,
		TargetLanguage:    target,
		EmbeddedLanguages: languages,
		HasTargetEmbedded: hasTarget,
		ExpiresAt:         time.Now().Add(mediaMetaCacheTTL),
	}); err != nil {
		log.Warn("Failed to cache media meta for %s: %v", mediaPath, err)
	}

	return len(tracks) > 0, hasTarget, languages
}
