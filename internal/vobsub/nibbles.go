package vobsub

// nibbleStream reads a byte slice as a stream of 4-bit values. The RLE
// pixel data and the inline palette commands are nibble-oriented.
type nibbleStream struct {
	data   []byte
	cursor int // in nibbles
}

func newNibbleStream(data []byte) *nibbleStream {
	return &nibbleStream{data: data}
}

// next returns the next nibble, or false when the stream is exhausted.
func (s *nibbleStream) next() (byte, bool) {
	byteCursor := s.cursor / 2
	if byteCursor >= len(s.data) {
		return 0, false
	}
	b := s.data[byteCursor]
	if s.cursor%2 == 0 {
		s.cursor++
		return b >> 4, true
	}
	s.cursor++
	return b & 0x0F, true
}

// aligned reports whether the cursor sits on a byte boundary.
func (s *nibbleStream) aligned() bool {
	return s.cursor%2 == 0
}

// align advances to the next byte boundary and returns the padding nibble
// skipped, if any. The format requires padding nibbles to be zero.
func (s *nibbleStream) align() (pad byte, skipped bool) {
	if s.aligned() {
		return 0, false
	}
	pad, ok := s.next()
	return pad, ok
}
