package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/subforge/subex/internal/demux"
	"github.com/subforge/subex/internal/imageproc"
	"github.com/subforge/subex/internal/ocr"
	"github.com/subforge/subex/internal/subtitle"
	"github.com/subforge/subex/internal/track"
	"github.com/subforge/subex/internal/vobsub"
	"github.com/subforge/subex/pkg/log"
)

// Config tunes the orchestrator. The zero value is usable; every field
// falls back to its documented default.
type Config struct {
	// Workers bounds concurrent event processing per track.
	Workers int
	// UnitSize is the number of events per work unit.
	UnitSize int
	// MinConfidence treats recognized text below this confidence as a
	// soft failure instead of accepted text. Zero accepts everything.
	MinConfidence float64
	// RecognitionTimeout bounds a single engine invocation.
	RecognitionTimeout time.Duration
	// DefaultDuration is the display time of bitmap cues that carry no
	// explicit stop date.
	DefaultDuration time.Duration
	// Preprocess configures the bitmap preprocessor.
	Preprocess imageproc.Options
}

const (
	defaultWorkers            = 4
	defaultRecognitionTimeout = 30 * time.Second
	defaultCueDuration        = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.UnitSize <= 0 {
		c.UnitSize = DefaultUnitSize
	}
	if c.RecognitionTimeout <= 0 {
		c.RecognitionTimeout = defaultRecognitionTimeout
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = defaultCueDuration
	}
	if c.Preprocess == (imageproc.Options{}) {
		c.Preprocess = imageproc.DefaultOptions()
	}
	return c
}

// TrackResult is the outcome of one processed track: recognized events
// sorted by start time, per-event failure records, and the detected
// language of the recognized text.
type TrackResult struct {
	Track    demux.Track
	Events   []Recognized
	Failures []Failure
	Language language.Tag
}

// Orchestrator drives subtitle events through classification, decoding,
// preprocessing and recognition.
type Orchestrator struct {
	cfg      Config
	engine   ocr.Engine
	observer Observer
}

// NewOrchestrator builds an orchestrator. The engine may be nil when
// only text tracks are processed; observer may be nil.
func NewOrchestrator(cfg Config, engine ocr.Engine, observer Observer) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Preprocess.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Orchestrator{cfg: cfg, engine: engine, observer: observer}, nil
}

// TrackFailure is a track-level failure, reported once per track.
type TrackFailure struct {
	Track demux.Track
	Err   error
}

// SourceReport is the outcome of processing one media source.
type SourceReport struct {
	Results       []TrackResult
	TrackFailures []TrackFailure
}

// ProcessSource runs every track of the source matching the predicate.
// Track-level failures (unsupported codec) are reported once per track
// and do not stop the remaining tracks. With no matching track it
// returns track.ErrNoSubtitleTrack.
func (o *Orchestrator) ProcessSource(ctx context.Context, source demux.Demuxer, match track.Predicate, palette *vobsub.Palette) (*SourceReport, error) {
	tracks, err := source.Tracks()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tracks")
	}
	if match == nil {
		match = track.AnySubtitle()
	}

	report := &SourceReport{}
	matched := false
	for _, t := range tracks {
		if !match(t) {
			continue
		}
		matched = true

		result, err := o.ProcessTrack(ctx, source, t, palette)
		if err != nil {
			if errors.Is(err, track.ErrUnsupportedCodec) {
				log.Warn("Track %d (%s): %v", t.ID, t.CodecID, err)
				report.TrackFailures = append(report.TrackFailures, TrackFailure{Track: t, Err: err})
				continue
			}
			return report, err
		}
		report.Results = append(report.Results, result)
	}

	if !matched {
		return nil, track.ErrNoSubtitleTrack
	}
	return report, nil
}

// ProcessTrack drains one track and processes its events. It returns
// track.ErrUnsupportedCodec for tracks the classifier rejects and a
// context error when canceled; event-level failures land in the result.
func (o *Orchestrator) ProcessTrack(ctx context.Context, source demux.Demuxer, t demux.Track, palette *vobsub.Palette) (TrackResult, error) {
	kind := track.Classify(t.CodecID)
	if kind == track.KindUnsupported {
		return TrackResult{}, errors.Wrapf(track.ErrUnsupportedCodec, "track %d codec %q", t.ID, t.CodecID)
	}

	events, err := o.collectEvents(ctx, source, t, kind)
	if err != nil {
		return TrackResult{}, err
	}

	result := TrackResult{Track: t}
	if len(events) == 0 {
		result.Language = language.Und
		o.observer.OnTrackResult(t.ID, nil)
		return result, nil
	}

	units := groupUnits(len(events), o.cfg.UnitSize)
	outcomes := make([]outcome, len(events))

	decoder := &vobsubDecoder{palette: palette}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.Workers)
	for i := range events {
		event := &events[i]
		unit := units[event.Index/o.cfg.UnitSize]
		group.Go(func() error {
			outcomes[event.Index] = o.processEvent(groupCtx, event, decoder)
			o.finishEvent(unit, outcomes[event.Index])
			return nil
		})
	}
	// Workers never return errors; terminal outcomes are recorded per
	// event instead. Cancellation surfaces as recognition failures, so
	// every event still reaches exactly one terminal state.
	_ = group.Wait()

	for _, out := range outcomes {
		if out.failed {
			result.Failures = append(result.Failures, out.failure)
		} else {
			result.Events = append(result.Events, out.recognized)
		}
	}
	sort.Slice(result.Events, func(i, j int) bool {
		return result.Events[i].Start < result.Events[j].Start
	})
	result.Language = detectLanguage(result.Events)

	o.observer.OnTrackResult(t.ID, result.Events)
	return result, nil
}

// outcome is the terminal state of one event.
type outcome struct {
	unitID     int
	failed     bool
	recognized Recognized
	failure    Failure
}

// collectEvents drains the track and classifies each packet into an
// event. PGS display sets are decoded here because their decoder keeps
// epoch state across packets.
func (o *Orchestrator) collectEvents(ctx context.Context, source demux.Demuxer, t demux.Track, kind track.Kind) ([]Event, error) {
	var scanner *pgsScanner
	if kind == track.KindBitmap && isPGS(t.CodecID) {
		scanner = newPGSScanner()
	}

	var events []Event
	for {
		packet, err := source.NextPacket(ctx, t.ID)
		if errors.Is(err, demux.ErrEndOfTrack) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read packet from track %d", t.ID)
		}

		event := Event{
			Index: len(events),
			Start: packet.Start,
			End:   packet.End,
		}

		switch {
		case kind == track.KindText:
			event.Cue = TextCue{Text: string(packet.Payload)}
		case scanner != nil:
			img, err := scanner.decode(packet)
			if err != nil {
				event.Cue = BitmapCue{Err: err}
			} else if img == nil {
				continue // composition cleared, no cue
			} else {
				event.Cue = BitmapCue{Image: img}
			}
		default:
			event.Cue = BitmapCue{Payload: packet.Payload}
		}
		events = append(events, event)
	}
	return events, nil
}

// processEvent runs one event to its terminal outcome.
func (o *Orchestrator) processEvent(ctx context.Context, event *Event, decoder *vobsubDecoder) outcome {
	switch cue := event.Cue.(type) {
	case TextCue:
		// text cues skip the image stages entirely
		text := subtitle.StripMarkup(cue.Text)
		return o.accept(event, text, 1)

	case BitmapCue:
		if cue.Err != nil {
			return o.fail(event, StateClassified, classifyDecodeError(cue.Err), cue.Err)
		}
		bitmap := cue.Image
		if bitmap == nil {
			decoded, err := decoder.decode(cue.Payload)
			if err != nil {
				return o.fail(event, StateClassified, classifyDecodeError(err), err)
			}
			bitmap = decoded
		}
		o.applyWindow(event, bitmap)

		prepared, err := imageproc.Preprocess(bitmap.Image, o.cfg.Preprocess)
		if err != nil {
			return o.fail(event, StateDecoded, FailureBitmapDecode, err)
		}
		prepared = imageproc.CropToContent(prepared)
		if imageproc.IsBlank(prepared) {
			// nothing visible, empty recognition rather than a failure
			return o.accept(event, "", 0)
		}

		recognizeCtx, cancel := context.WithTimeout(ctx, o.cfg.RecognitionTimeout)
		defer cancel()
		result, err := o.engine.Recognize(recognizeCtx, prepared)
		if err != nil {
			return o.fail(event, StatePreprocessed, FailureRecognition, err)
		}

		text := strings.TrimSpace(result.Text)
		if text != "" && result.Confidence < o.cfg.MinConfidence {
			return o.fail(event, StatePreprocessed, FailureLowConfidence,
				errors.Newf("confidence %.2f below %.2f", result.Confidence, o.cfg.MinConfidence))
		}
		if text == "" {
			return o.accept(event, "", 0)
		}
		return o.accept(event, text, result.Confidence)

	default:
		return o.fail(event, StatePending, FailureBitmapDecode, errors.New("event without cue"))
	}
}

// applyWindow adjusts the event timing from the cue's display window.
func (o *Orchestrator) applyWindow(event *Event, bitmap *DecodedBitmap) {
	event.Start += bitmap.StartOffset
	if bitmap.HasStop {
		event.End = event.Start + (bitmap.StopOffset - bitmap.StartOffset)
	}
	if event.End <= event.Start {
		event.End = event.Start + o.cfg.DefaultDuration
	}
}

func (o *Orchestrator) accept(event *Event, text string, confidence float64) outcome {
	return outcome{recognized: Recognized{
		Index:      event.Index,
		Start:      event.Start,
		End:        event.End,
		Text:       text,
		Confidence: confidence,
	}}
}

func (o *Orchestrator) fail(event *Event, stage State, kind FailureKind, err error) outcome {
	return outcome{failed: true, failure: Failure{
		Index:  event.Index,
		Stage:  stage,
		Kind:   kind,
		Reason: err.Error(),
	}}
}

// finishEvent records a terminal outcome against its work unit and
// notifies the observer.
func (o *Orchestrator) finishEvent(unit *WorkUnit, out outcome) {
	if out.failed {
		o.observer.OnEventFailed(unit.ID, out.failure.Index, out.failure.Kind, out.failure.Reason)
	}
	unit.complete(func(completed int) {
		o.observer.OnUnitProgress(unit.ID, completed, unit.Expected)
	})
}

func isPGS(codecID string) bool {
	switch codecID {
	case "S_HDMV/PGS", "hdmv_pgs_subtitle":
		return true
	}
	return false
}

// detectLanguage runs language detection over the recognized text.
func detectLanguage(events []Recognized) language.Tag {
	lines := make([]subtitle.Line, 0, len(events))
	for _, e := range events {
		if e.Text != "" {
			lines = append(lines, subtitle.Line{Text: e.Text})
		}
	}
	return subtitle.DetectLanguage(lines)
}
