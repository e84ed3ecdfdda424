package demux

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidSupFile means the .sup segment stream is malformed.
var ErrInvalidSupFile = errors.New("invalid sup file")

const (
	supMagic       = 0x5047 // "PG"
	supHeaderSize  = 13     // magic + pts + dts + type + size
	supSegmentEnd  = 0x80
	supClockPerSec = 90000
)

// SupFile is a Demuxer over a standalone Blu-ray .sup file: a sequence
// of PGS segments each framed by a "PG" header carrying the
// presentation timestamp. One Packet per display set, segments between
// two END markers concatenated so the PGS decoder can consume them.
type SupFile struct {
	stream *fileStream
	track  Track

	mu  sync.Mutex
	pos int64
}

// OpenSup opens the .sup file at path.
func OpenSup(path string) (*SupFile, error) {
	stream, err := openFileStream(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &SupFile{
		stream: stream,
		track: Track{
			ID:       0,
			CodecID:  "S_HDMV/PGS",
			Language: "und",
			Name:     name,
		},
	}, nil
}

func (s *SupFile) Tracks() ([]Track, error) {
	return []Track{s.track}, nil
}

// NextPacket assembles the next display set. The timestamp of the set's
// first segment becomes the packet start; PGS carries no explicit cue
// durations at this level.
func (s *SupFile) NextPacket(ctx context.Context, trackID int64) (*Packet, error) {
	if trackID != s.track.ID {
		return nil, errors.Newf("unknown track %d", trackID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	var start time.Duration

	for {
		if s.pos >= s.stream.size {
			if len(payload) > 0 {
				return nil, errors.Wrap(ErrInvalidSupFile, "display set truncated at end of file")
			}
			return nil, ErrEndOfTrack
		}

		header, err := s.stream.bytesAt(s.pos, supHeaderSize)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidSupFile, "truncated segment header")
		}
		if binary.BigEndian.Uint16(header[0:2]) != supMagic {
			return nil, errors.Wrapf(ErrInvalidSupFile, "bad segment magic at offset %d", s.pos)
		}
		pts := binary.BigEndian.Uint32(header[2:6])
		segType := header[10]
		segSize := int(binary.BigEndian.Uint16(header[11:13]))

		data, err := s.stream.bytesAt(s.pos+supHeaderSize, segSize)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSupFile, "segment at offset %d exceeds file", s.pos)
		}
		s.pos += supHeaderSize + int64(segSize)

		if len(payload) == 0 {
			start = time.Duration(pts) * time.Second / supClockPerSec
		}
		payload = append(payload, segType, byte(segSize>>8), byte(segSize))
		payload = append(payload, data...)

		if segType == supSegmentEnd {
			return &Packet{Payload: payload, Start: start}, nil
		}
	}
}

func (s *SupFile) Close() error {
	return s.stream.Close()
}
