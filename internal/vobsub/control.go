package vobsub

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
)

// Control sequence commands, in subpicture packet order.
const (
	cmdForce      = 0x00
	cmdStartDate  = 0x01
	cmdStopDate   = 0x02
	cmdPalette    = 0x03
	cmdAlpha      = 0x04
	cmdCoords     = 0x05
	cmdRLEOffsets = 0x06
	cmdEnd        = 0xFF
)

// coordinates is the display window of a subpicture, inclusive on both
// ends.
type coordinates struct {
	x1, x2, y1, y2 uint16
}

func (c coordinates) width() int  { return int(c.x2) - int(c.x1) + 1 }
func (c coordinates) height() int { return int(c.y2) - int(c.y1) + 1 }

// controlData is the decoded control sequence area of one subpicture
// packet.
type controlData struct {
	force        bool
	hasStart     bool
	startOffset  time.Duration
	hasStop      bool
	stopOffset   time.Duration
	colorPalette *[4]byte
	alphaPalette *[4]byte
	coords       *coordinates
	rleOffsets   *[2]uint16
}

// dateUnits converts a control sequence date field to a duration. Dates
// tick in units of 1024/90000 seconds.
func dateUnits(raw uint16) time.Duration {
	return time.Duration(raw) * 1024 * time.Second / 90000
}

// parseControl walks the control sequence chain starting at cursor. The
// chain ends when a sequence points at itself.
func parseControl(data []byte, cursor int) (*controlData, error) {
	control := &controlData{}

	for {
		if len(data) <= cursor+4 {
			return nil, errors.Wrap(ErrInvalidControl, "truncated control sequence header")
		}
		thisSequence := cursor
		offsetTime := binary.BigEndian.Uint16(data[cursor:])
		nextControl := binary.BigEndian.Uint16(data[cursor+2:])
		cursor += 4

	commands:
		for {
			if len(data) <= cursor {
				return nil, errors.Wrap(ErrInvalidControl, "truncated command area")
			}
			switch data[cursor] {
			case cmdForce:
				control.force = true
				cursor++
			case cmdStartDate:
				control.hasStart = true
				control.startOffset = dateUnits(offsetTime)
				cursor++
			case cmdStopDate:
				control.hasStop = true
				control.stopOffset = dateUnits(offsetTime)
				cursor++
			case cmdPalette:
				entries, err := readNibbleQuad(data, cursor+1)
				if err != nil {
					return nil, err
				}
				control.colorPalette = entries
				cursor += 3
			case cmdAlpha:
				entries, err := readNibbleQuad(data, cursor+1)
				if err != nil {
					return nil, err
				}
				control.alphaPalette = entries
				cursor += 3
			case cmdCoords:
				if len(data) <= cursor+6 {
					return nil, errors.Wrap(ErrInvalidControl, "truncated coordinates command")
				}
				control.coords = &coordinates{
					x1: binary.BigEndian.Uint16(data[cursor+1:]) >> 4 & 0xFFF,
					x2: binary.BigEndian.Uint16(data[cursor+2:]) & 0xFFF,
					y1: binary.BigEndian.Uint16(data[cursor+4:]) >> 4 & 0xFFF,
					y2: binary.BigEndian.Uint16(data[cursor+5:]) & 0xFFF,
				}
				cursor += 7
			case cmdRLEOffsets:
				if len(data) <= cursor+4 {
					return nil, errors.Wrap(ErrInvalidControl, "truncated RLE offsets command")
				}
				control.rleOffsets = &[2]uint16{
					binary.BigEndian.Uint16(data[cursor+1:]), // even lines
					binary.BigEndian.Uint16(data[cursor+3:]), // odd lines
				}
				cursor += 5
			case cmdEnd:
				break commands
			default:
				cursor++
			}
		}

		if int(nextControl) == thisSequence {
			return control, nil
		}
		// Sequences are laid out in stream order; a link that does not
		// advance would revisit a sequence and loop forever.
		if int(nextControl) <= thisSequence {
			return nil, errors.Wrapf(ErrInvalidControl,
				"control sequence at %d links backward to %d", thisSequence, nextControl)
		}
		cursor = int(nextControl)
	}
}

// readNibbleQuad reads four nibbles from two bytes at offset.
func readNibbleQuad(data []byte, offset int) (*[4]byte, error) {
	if len(data) < offset+2 {
		return nil, errors.Wrap(ErrInvalidControl, "truncated palette command")
	}
	stream := newNibbleStream(data[offset : offset+2])
	var quad [4]byte
	for i := range quad {
		n, ok := stream.next()
		if !ok {
			return nil, errors.Wrap(ErrInvalidControl, "truncated palette command")
		}
		quad[i] = n
	}
	return &quad, nil
}
