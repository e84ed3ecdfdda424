package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/subforge/subex/internal/demux"
	"github.com/subforge/subex/internal/jobs"
	"github.com/subforge/subex/internal/persistence"
	"github.com/subforge/subex/internal/pipeline"
	"github.com/subforge/subex/internal/subtitle"
	"github.com/subforge/subex/internal/track"
	"github.com/subforge/subex/internal/vobsub"
	"github.com/subforge/subex/pkg/file"
	"github.com/subforge/subex/pkg/log"
)

// Executor returns the job queue executor running one extraction per job.
func (s *ExtractService) Executor() jobs.Executor {
	return func(ctx context.Context, job *jobs.ExtractionJob) error {
		return s.runJob(ctx, job)
	}
}

func (s *ExtractService) runJob(ctx context.Context, job *jobs.ExtractionJob) error {
	out := job.Payload.OutputFile
	if out == "" {
		return fmt.Errorf("job %s has no output file", job.ID)
	}
	if file.Exists(out) {
		log.Info("Job %s: output %s already exists", job.ID, out)
		return jobs.ErrSkipped
	}

	checkpoints, err := newUnitCheckpointStore(s.store, job.ID)
	if err != nil {
		return err
	}
	if events, ok, err := checkpoints.load(ctx); err != nil {
		log.Warn("Job %s: dropping unreadable checkpoints: %v", job.ID, err)
		if clearErr := checkpoints.clear(ctx); clearErr != nil {
			log.Warn("Job %s: failed to clear checkpoints: %v", job.ID, clearErr)
		}
	} else if ok {
		log.Info("Job %s: resuming from %d checkpointed events", job.ID, len(events))
		return s.writeResult(ctx, job, events, language.Und, checkpoints)
	}

	sidecar := job.Payload.SidecarFile
	switch file.Ext(sidecar) {
	case ".idx":
		source, err := demux.OpenVobSub(sidecar)
		if err != nil {
			return err
		}
		return s.runPipeline(ctx, job, source, source.Palette(), checkpoints)
	case ".sup":
		source, err := demux.OpenSup(sidecar)
		if err != nil {
			return err
		}
		return s.runPipeline(ctx, job, source, nil, checkpoints)
	default:
		return s.extractFromContainer(ctx, job)
	}
}

// runPipeline drains the source through the OCR pipeline and writes the
// best track's result.
func (s *ExtractService) runPipeline(
	ctx context.Context,
	job *jobs.ExtractionJob,
	source demux.Demuxer,
	palette *vobsub.Palette,
	checkpoints *unitCheckpointStore,
) error {
	defer source.Close()

	engine := s.newEngine()
	defer engine.Close()

	orch, err := pipeline.NewOrchestrator(s.pipelineConfig(), engine, pipeline.LogObserver{})
	if err != nil {
		return err
	}

	var pred track.Predicate
	if job.Payload.Language != "" {
		pred = track.ByLanguage(job.Payload.Language)
	}
	report, err := orch.ProcessSource(ctx, source, pred, palette)
	if err != nil {
		return fmt.Errorf("extraction of %s failed: %w", job.Payload.MediaFile, err)
	}

	result := bestResult(report)
	if result == nil {
		return fmt.Errorf("no usable subtitle track in %s (%d track failures)",
			job.Payload.MediaFile, len(report.TrackFailures))
	}
	log.Info("Job %s: track %d produced %d events, %d failures",
		job.ID, result.Track.ID, len(result.Events), len(result.Failures))

	events := dropEmpty(result.Events)
	if err := checkpoints.save(ctx, events, s.cfg.Pipeline.UnitSize); err != nil {
		log.Warn("Job %s: failed to checkpoint results: %v", job.ID, err)
	}
	return s.writeResult(ctx, job, events, result.Language, checkpoints)
}

// extractFromContainer handles media files without a bitmap sidecar:
// an embedded text track is dumped and normalized at file granularity.
// Embedded bitmap tracks have no packet-level demuxer here and need an
// extracted .idx or .sup sidecar next to the media file.
func (s *ExtractService) extractFromContainer(ctx context.Context, job *jobs.ExtractionJob) error {
	tracks, err := s.probe.Probe(ctx, job.Payload.MediaFile)
	if err != nil {
		return err
	}

	index := pickTextTrack(tracks, job.Payload.Language, s.cfg.Extract.TargetLanguage)
	if index < 0 {
		for _, t := range tracks {
			if track.Classify(t.CodecID) == track.KindBitmap {
				return fmt.Errorf("media %s only has embedded bitmap subtitle tracks; extract an .idx or .sup sidecar first",
					job.Payload.MediaFile)
			}
		}
		return track.ErrNoSubtitleTrack
	}

	tmpPath := job.Payload.OutputFile + ".tmp"
	if err := s.probe.ExtractTextTrack(ctx, job.Payload.MediaFile, index, tmpPath); err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	file, err := subtitle.NewReader().Read(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to read extracted track: %w", err)
	}

	lines := make([]subtitle.Line, 0, len(file.Lines))
	for _, line := range file.Lines {
		line.Text = subtitle.StripMarkup(line.Text)
		if line.Text == "" {
			continue
		}
		lines = append(lines, line)
	}
	file.Lines = lines
	if file.Language == language.Und {
		file.Language = subtitle.DetectLanguage(lines)
	}

	if err := subtitle.NewWriter().Write(job.Payload.OutputFile, file); err != nil {
		return err
	}
	s.cacheResult(ctx, job, file)
	log.Info("Job %s: wrote %s (%d lines, embedded text track %d)",
		job.ID, job.Payload.OutputFile, len(lines), index)
	return nil
}

// writeResult serializes recognized events as an SRT next to the media.
func (s *ExtractService) writeResult(
	ctx context.Context,
	job *jobs.ExtractionJob,
	events []pipeline.Recognized,
	lang language.Tag,
	checkpoints *unitCheckpointStore,
) error {
	if len(events) == 0 {
		return fmt.Errorf("extraction of %s recognized no text", job.Payload.MediaFile)
	}

	lines := make([]subtitle.Line, 0, len(events))
	for _, event := range events {
		lines = append(lines, subtitle.Line{
			StartTime:  event.Start,
			EndTime:    event.End,
			Text:       event.Text,
			Confidence: event.Confidence,
		})
	}
	if lang == language.Und {
		lang = subtitle.DetectLanguage(lines)
	}

	file := &subtitle.File{
		Lines:    lines,
		Language: lang,
		Format:   "srt",
	}
	if err := subtitle.NewWriter().Write(job.Payload.OutputFile, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", job.Payload.OutputFile, err)
	}
	s.cacheResult(ctx, job, file)

	if err := checkpoints.clear(ctx); err != nil {
		log.Warn("Job %s: failed to clear checkpoints: %v", job.ID, err)
	}
	log.Info("Job %s: wrote %s (%d lines)", job.ID, job.Payload.OutputFile, len(lines))
	return nil
}

func (s *ExtractService) cacheResult(ctx context.Context, job *jobs.ExtractionJob, file *subtitle.File) {
	err := s.store.PutSubtitleCache(ctx, persistence.SubtitleCacheEntry{
		CacheKey:  job.Payload.OutputFile,
		MediaPath: job.Payload.MediaFile,
		JobID:     job.ID,
		PathHint:  job.Payload.OutputFile,
		File:      *file,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		log.Warn("Job %s: failed to cache subtitle: %v", job.ID, err)
	}
}

func (s *ExtractService) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Workers:            s.cfg.Pipeline.Workers,
		UnitSize:           s.cfg.Pipeline.UnitSize,
		MinConfidence:      s.cfg.OCR.MinConfidence,
		RecognitionTimeout: s.cfg.OCRTimeout(),
		DefaultDuration:    s.cfg.CueDefaultDuration(),
		Preprocess:         s.cfg.Preprocess.Options(),
	}
}

// bestResult picks the track result with the most recognized events.
func bestResult(report *pipeline.SourceReport) *pipeline.TrackResult {
	var best *pipeline.TrackResult
	for i := range report.Results {
		if best == nil || len(report.Results[i].Events) > len(best.Events) {
			best = &report.Results[i]
		}
	}
	return best
}

// dropEmpty removes events whose bitmap held no text, e.g. fully
// transparent clear frames.
func dropEmpty(events []pipeline.Recognized) []pipeline.Recognized {
	kept := make([]pipeline.Recognized, 0, len(events))
	for _, event := range events {
		if strings.TrimSpace(event.Text) == "" {
			continue
		}
		kept = append(kept, event)
	}
	return kept
}

// pickTextTrack chooses the embedded text track to dump: the job's
// requested language first, then the target language, then the first
// text track. Returns the track's position among subtitle streams, which
// is what ffmpeg's 0:s:N mapping counts.
func pickTextTrack(tracks []demux.Track, requested string, target language.Tag) int {
	prefs := make([]track.Predicate, 0, 3)
	if requested != "" {
		prefs = append(prefs, track.ByLanguage(requested))
	}
	base, _ := target.Base()
	prefs = append(prefs,
		track.ByLanguage(base.String()),
		track.ByKind(track.KindText),
	)

	for _, pref := range prefs {
		for i, t := range tracks {
			if track.Classify(t.CodecID) != track.KindText {
				continue
			}
			if pref(t) {
				return i
			}
		}
	}
	return -1
}
