package demux

import (
	"context"
	"encoding/binary"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/subforge/subex/internal/vobsub"
	"github.com/subforge/subex/pkg/file"
)

// ErrInvalidSubFile means the .sub program stream is malformed.
var ErrInvalidSubFile = errors.New("invalid VobSub sub file")

// MPEG program stream start codes.
const (
	packStartCode     = 0x000001BA
	privateStream1    = 0x000001BD
	packHeaderSize    = 14
	pesHeaderFixedLen = 9 // start code + length + flags + header data length
)

// VobSubFile is a Demuxer over a VobSub .idx/.sub file pair. The .idx
// sidecar supplies the track palette, language and cue index; subpicture
// packets are reassembled from the MPEG program stream in the .sub file.
type VobSubFile struct {
	idx    *vobsub.IdxFile
	stream *fileStream
	track  Track

	mu     sync.Mutex
	cursor int
}

// OpenVobSub opens the .idx file at idxPath and the .sub file next to it.
func OpenVobSub(idxPath string) (*VobSubFile, error) {
	raw, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read idx file %s", idxPath)
	}
	idx, err := vobsub.ParseIdx(raw)
	if err != nil {
		return nil, err
	}

	subPath := file.Sibling(idxPath, ".sub")
	stream, err := openFileStream(subPath)
	if err != nil {
		return nil, err
	}

	lang := idx.Language
	if lang == "" {
		lang = "und"
	}
	return &VobSubFile{
		idx:    idx,
		stream: stream,
		track: Track{
			ID:       0,
			CodecID:  "S_VOBSUB",
			Language: lang,
		},
	}, nil
}

// Palette returns the track palette from the .idx sidecar.
func (v *VobSubFile) Palette() *vobsub.Palette {
	return &v.idx.Palette
}

func (v *VobSubFile) Tracks() ([]Track, error) {
	return []Track{v.track}, nil
}

func (v *VobSubFile) NextPacket(ctx context.Context, trackID int64) (*Packet, error) {
	if trackID != v.track.ID {
		return nil, errors.Newf("unknown track %d", trackID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cursor >= len(v.idx.Cues) {
		return nil, ErrEndOfTrack
	}
	cue := v.idx.Cues[v.cursor]
	v.cursor++

	payload, err := v.assembleSubpicture(cue.FilePos)
	if err != nil {
		return nil, err
	}
	return &Packet{
		Payload: payload,
		Start:   cue.Start,
	}, nil
}

func (v *VobSubFile) Close() error {
	return v.stream.Close()
}

// assembleSubpicture collects one subpicture packet starting at pos. A
// subpicture can span several PES packets; its first two bytes carry the
// total size to collect.
func (v *VobSubFile) assembleSubpicture(pos int64) ([]byte, error) {
	var payload []byte
	total := -1

	for total < 0 || len(payload) < total {
		header, err := v.stream.bytesAt(pos, 4)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidSubFile, "truncated program stream")
		}

		switch binary.BigEndian.Uint32(header) {
		case packStartCode:
			stuffing, err := v.packStuffing(pos)
			if err != nil {
				return nil, err
			}
			pos += packHeaderSize + int64(stuffing)
		case privateStream1:
			chunk, next, err := v.pesPayload(pos)
			if err != nil {
				return nil, err
			}
			payload = append(payload, chunk...)
			pos = next

			if total < 0 {
				if len(payload) < 2 {
					return nil, errors.Wrap(ErrInvalidSubFile, "subpicture too short for size header")
				}
				total = int(binary.BigEndian.Uint16(payload))
				if total == 0 {
					return nil, errors.Wrap(ErrInvalidSubFile, "zero-length subpicture")
				}
			}
		default:
			return nil, errors.Wrapf(ErrInvalidSubFile, "unexpected start code at %d", pos)
		}
	}

	return payload[:total], nil
}

// packStuffing reads the stuffing length of an MPEG-2 pack header.
func (v *VobSubFile) packStuffing(pos int64) (int, error) {
	header, err := v.stream.bytesAt(pos, packHeaderSize)
	if err != nil {
		return 0, errors.Wrap(ErrInvalidSubFile, "truncated pack header")
	}
	return int(header[13] & 0x07), nil
}

// pesPayload unwraps one private-stream-1 PES packet: it skips the PES
// extension header and the one-byte subpicture substream id, returning the
// packet payload and the position of the next packet.
func (v *VobSubFile) pesPayload(pos int64) ([]byte, int64, error) {
	fixed, err := v.stream.bytesAt(pos, pesHeaderFixedLen)
	if err != nil {
		return nil, 0, errors.Wrap(ErrInvalidSubFile, "truncated PES header")
	}

	packetLength := int(binary.BigEndian.Uint16(fixed[4:]))
	headerDataLen := int(fixed[8])
	payloadStart := pesHeaderFixedLen + headerDataLen + 1 // +1 substream id
	packetEnd := 6 + packetLength

	if payloadStart > packetEnd {
		return nil, 0, errors.Wrap(ErrInvalidSubFile, "PES header larger than packet")
	}

	payload, err := v.stream.bytesAt(pos+int64(payloadStart), packetEnd-payloadStart)
	if err != nil {
		return nil, 0, errors.Wrap(ErrInvalidSubFile, "truncated PES payload")
	}
	return payload, pos + int64(packetEnd), nil
}
