package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/subforge/subex/internal/config"
	"github.com/subforge/subex/internal/demux"
	"github.com/subforge/subex/internal/jobs"
	"github.com/subforge/subex/internal/library"
	"github.com/subforge/subex/internal/ocr"
	"github.com/subforge/subex/internal/persistence"
	"github.com/subforge/subex/pkg/icron"
	"github.com/subforge/subex/pkg/log"
)

// outputSuffix tags subtitle files this tool wrote, so the scanner can
// tell them apart from subtitles that shipped with the media.
const outputSuffix = ".subex."

// ExtractService wires the library scanner, the job queue and the OCR
// pipeline together: scheduled scans find media with bitmap-only
// subtitles and enqueue one extraction job per media file.
type ExtractService struct {
	cfg      config.Config
	cronExpr string
	cron     *cron.Cron
	scanner  *library.Scanner
	queue    *jobs.Queue
	store    *persistence.SQLiteStore
	probe    *demux.FFProbe

	newEngine func() ocr.Engine
}

// ServiceOption configures an ExtractService.
type ServiceOption func(*ExtractService)

// WithEngineFactory overrides how the recognition engine is built.
func WithEngineFactory(factory func() ocr.Engine) ServiceOption {
	return func(s *ExtractService) {
		s.newEngine = factory
	}
}

// WithProbe overrides the container prober.
func WithProbe(probe *demux.FFProbe) ServiceOption {
	return func(s *ExtractService) {
		s.probe = probe
	}
}

func NewExtractService(
	cfg config.Config,
	cronEngine *cron.Cron,
	store *persistence.SQLiteStore,
	queue *jobs.Queue,
	opts ...ServiceOption,
) *ExtractService {
	s := &ExtractService{
		cfg:      cfg,
		cronExpr: cfg.Extract.CronExpr,
		cron:     cronEngine,
		queue:    queue,
		store:    store,
		probe:    demux.NewFFProbe(),
	}
	s.newEngine = func() ocr.Engine {
		return ocr.NewTesseract(cfg.OCR.Command, cfg.OCR.Language)
	}
	for _, opt := range opts {
		opt(s)
	}

	sources := make([]library.SourceConfig, 0)
	for _, dir := range cfg.Media.MediaPaths() {
		name := filepath.Base(dir)
		sources = append(sources, library.SourceConfig{
			ID:   name,
			Name: name,
			Path: dir,
		})
	}
	s.scanner = library.NewScanner(
		sources,
		cfg.Extract.TargetLanguage,
		library.WithEmbeddedDetector(s.detectEmbedded),
	)
	return s
}

var singleflightGroup singleflight.Group

// Schedule registers the periodic scan on the cron engine and starts the
// job workers.
func (s *ExtractService) Schedule(ctx context.Context) error {
	log.Info("Run ExtractService")

	trigger, err := icron.GetTriggerInfo(s.cronExpr, time.Now())
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cronExpr, err)
	}
	log.Info("Library scan scheduled, next run at %v", trigger.Next)

	s.queue.Start(s.Executor())

	runFunc := func() {
		_, _, _ = singleflightGroup.Do("scan", func() (any, error) {
			enqueued, err := s.ScanAndEnqueue(ctx)
			if err != nil {
				log.Error("Library scan failed: %v", err)
				return nil, err
			}
			log.Info("Library scan done, %d new extraction jobs", enqueued)
			return nil, nil
		})
	}
	_, err = s.cron.AddFunc(s.cronExpr, runFunc)
	return err
}

// Stop drains the job workers.
func (s *ExtractService) Stop() {
	s.queue.Stop()
}

// ScanAndEnqueue runs one library scan and enqueues an extraction job
// for every media file that has an OCR source but no target-language
// text subtitle. Returns the number of newly enqueued jobs.
func (s *ExtractService) ScanAndEnqueue(ctx context.Context) (int, error) {
	scanRunID := uuid.NewString()

	if pruned, err := s.store.DeleteExpiredMediaMetaCache(ctx, time.Now()); err != nil {
		log.Warn("Scan %s: failed to prune media meta cache: %v", scanRunID, err)
	} else if pruned > 0 {
		log.Debug("Scan %s: pruned %d expired media meta entries", scanRunID, pruned)
	}

	lib, err := s.scanner.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("library scan failed: %w", err)
	}
	log.Info("Scan %s: %d episodes, %d sources", scanRunID, len(lib.Episodes), len(lib.Sources))

	enqueued := 0
	for _, ep := range lib.Episodes {
		if !ep.Extractable {
			continue
		}

		payload := jobs.JobPayload{
			MediaFile:  ep.MediaPath,
			OutputFile: s.outputPath(ep.MediaPath),
			Language:   s.cfg.Extract.TrackLanguage,
		}
		if len(ep.Subtitles.BitmapSubtitleFiles) > 0 {
			payload.SidecarFile = ep.Subtitles.BitmapSubtitleFiles[0]
		}

		job, isNew := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    "scan",
			DedupeKey: dedupeKey(payload),
			Payload:   payload,
		})
		if isNew {
			enqueued++
			log.Info("Scan %s: enqueued job %s for %s", scanRunID, job.ID, ep.MediaPath)
		}
	}
	return enqueued, nil
}

// outputPath names the extracted subtitle next to the media file, e.g.
// movie.mkv -> movie.subex.en.srt.
func (s *ExtractService) outputPath(mediaPath string) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	lang, _ := s.cfg.Extract.TargetLanguage.Base()
	return base + outputSuffix + lang.String() + ".srt"
}

func dedupeKey(payload jobs.JobPayload) string {
	return payload.MediaFile + "|" + payload.OutputFile
}
