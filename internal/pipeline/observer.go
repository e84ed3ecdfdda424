package pipeline

import (
	"github.com/subforge/subex/pkg/log"
)

// Observer receives progress callbacks from the orchestrator. Callbacks
// for one work unit are serialized; callbacks for different units may
// arrive concurrently.
type Observer interface {
	OnUnitProgress(unitID, completed, total int)
	OnEventFailed(unitID, eventIndex int, kind FailureKind, reason string)
	OnTrackResult(trackID int64, events []Recognized)
}

// NopObserver ignores all callbacks.
type NopObserver struct{}

func (NopObserver) OnUnitProgress(int, int, int)                {}
func (NopObserver) OnEventFailed(int, int, FailureKind, string) {}
func (NopObserver) OnTrackResult(int64, []Recognized)           {}

// LogObserver writes progress to the application log.
type LogObserver struct{}

func (LogObserver) OnUnitProgress(unitID, completed, total int) {
	log.Debug("Work unit %d: %d/%d events done", unitID, completed, total)
}

func (LogObserver) OnEventFailed(unitID, eventIndex int, kind FailureKind, reason string) {
	log.Warn("Event %d (unit %d) failed: %s: %s", eventIndex, unitID, kind, reason)
}

func (LogObserver) OnTrackResult(trackID int64, events []Recognized) {
	log.Info("Track %d: %d subtitle events recognized", trackID, len(events))
}
