package pipeline

import "fmt"

// FailureKind classifies event-level failures.
type FailureKind int

const (
	FailureUnsupportedCodec FailureKind = iota
	FailureBitmapDecode
	FailureMalformedRunLength
	FailureRecognition
	FailureLowConfidence
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnsupportedCodec:
		return "unsupported codec"
	case FailureBitmapDecode:
		return "bitmap decode error"
	case FailureMalformedRunLength:
		return "malformed run length"
	case FailureRecognition:
		return "recognition failed"
	case FailureLowConfidence:
		return "low confidence"
	default:
		return "unknown"
	}
}

// Failure is the failed terminal outcome of one event. Stage is the
// pipeline state in which the event failed.
type Failure struct {
	Index  int
	Stage  State
	Kind   FailureKind
	Reason string
}

func (f Failure) Error() string {
	return fmt.Sprintf("event %d failed in %s stage: %s: %s", f.Index, f.Stage, f.Kind, f.Reason)
}
