// Package demux is the boundary to container demultiplexing. The pipeline
// consumes subtitle tracks as opaque packet streams; reading the container
// formats themselves is a supplier concern. Suppliers provided: a VobSub
// .idx/.sub file-pair source, a standalone PGS .sup source, and an
// ffprobe-backed track lister for arbitrary containers.
package demux

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrEndOfTrack is returned by NextPacket when a track has no packets
// left.
var ErrEndOfTrack = errors.New("end of track")

// Track describes one subtitle track of a container. Tracks are read-only
// after construction and safe to share across goroutines.
type Track struct {
	// ID is the track identifier within its source.
	ID int64
	// CodecID is the container's codec tag, e.g. "S_TEXT/UTF8" or
	// "S_VOBSUB".
	CodecID string
	// Language is the container's language tag for the track, "und" when
	// unknown.
	Language string
	// Name is the optional human-readable track title.
	Name string
}

// Packet is one raw subtitle cue payload with its presentation window.
// End may be zero when the container does not carry cue durations; the
// payload itself then determines the display window.
type Packet struct {
	Payload []byte
	Start   time.Duration
	End     time.Duration
}

// Demuxer supplies subtitle tracks and their packet streams.
type Demuxer interface {
	// Tracks lists the subtitle tracks of the source.
	Tracks() ([]Track, error)
	// NextPacket returns the next packet of the given track, or
	// ErrEndOfTrack when the stream is exhausted.
	NextPacket(ctx context.Context, trackID int64) (*Packet, error)
	// Close releases the underlying source.
	Close() error
}
