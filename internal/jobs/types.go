package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload describes one extraction: the media source, an optional
// .idx sidecar for standalone VobSub pairs, the target .srt path and
// the requested track language (empty selects any subtitle track).
type JobPayload struct {
	MediaFile   string `json:"media_file"`
	SidecarFile string `json:"sidecar_file,omitempty"`
	OutputFile  string `json:"output_file"`
	Language    string `json:"language,omitempty"`
}

type ExtractionJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
