package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/subforge/subex/internal/persistence"
	"github.com/subforge/subex/internal/pipeline"
)

// unitCheckpointStore persists the recognized events of an extraction in
// work-unit sized slices. A job that finished recognition but crashed
// before the subtitle was written resumes from the checkpoints instead
// of re-running OCR.
type unitCheckpointStore struct {
	store *persistence.SQLiteStore
	jobID string
}

func newUnitCheckpointStore(store *persistence.SQLiteStore, jobID string) (*unitCheckpointStore, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if jobID == "" {
		return nil, fmt.Errorf("job id is empty")
	}
	return &unitCheckpointStore{store: store, jobID: jobID}, nil
}

// save writes one checkpoint per work unit of events. Events must be the
// complete recognition result; partial saves would be replayed as if
// they were the whole track.
func (s *unitCheckpointStore) save(ctx context.Context, events []pipeline.Recognized, unitSize int) error {
	if unitSize <= 0 {
		unitSize = pipeline.DefaultUnitSize
	}

	for start := 0; start < len(events); start += unitSize {
		end := start + unitSize
		if end > len(events) {
			end = len(events)
		}

		lines := make([]string, 0, end-start)
		for _, event := range events[start:end] {
			encoded, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("failed to encode recognized event %d: %w", event.Index, err)
			}
			lines = append(lines, string(encoded))
		}
		if err := s.store.SaveUnitCheckpoint(ctx, s.jobID, start, end, lines); err != nil {
			return fmt.Errorf("failed to save checkpoint [%d,%d): %w", start, end, err)
		}
	}
	return nil
}

// load restores all checkpointed events, sorted by event index. The
// second return is false when no checkpoints exist.
func (s *unitCheckpointStore) load(ctx context.Context) ([]pipeline.Recognized, bool, error) {
	checkpoints, err := s.store.LoadUnitCheckpoints(ctx, s.jobID)
	if err != nil {
		return nil, false, err
	}
	if len(checkpoints) == 0 {
		return nil, false, nil
	}

	events := make([]pipeline.Recognized, 0)
	for _, cp := range checkpoints {
		for _, line := range cp.RecognizedLines {
			var event pipeline.Recognized
			if err := json.Unmarshal([]byte(line), &event); err != nil {
				return nil, false, fmt.Errorf("corrupt checkpoint [%d,%d): %w", cp.UnitStart, cp.UnitEnd, err)
			}
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start < events[j].Start })
	return events, true, nil
}

// clear drops the job's checkpoints and temp caches after the subtitle
// has been written.
func (s *unitCheckpointStore) clear(ctx context.Context) error {
	return s.store.ClearJobTemp(ctx, s.jobID)
}
