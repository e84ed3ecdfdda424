package demux

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supSegment(pts uint32, segType byte, payload []byte) []byte {
	out := []byte{'P', 'G'}
	out = append(out,
		byte(pts>>24), byte(pts>>16), byte(pts>>8), byte(pts),
		0, 0, 0, 0, // dts, unused
		segType,
		byte(len(payload)>>8), byte(len(payload)),
	)
	return append(out, payload...)
}

func writeSup(t *testing.T, segments ...[]byte) string {
	t.Helper()
	var data []byte
	for _, seg := range segments {
		data = append(data, seg...)
	}
	path := filepath.Join(t.TempDir(), "movie.sup")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSupFile_TrackMetadata(t *testing.T) {
	path := writeSup(t, supSegment(0, 0x80, nil))

	sup, err := OpenSup(path)
	require.NoError(t, err)
	defer sup.Close()

	tracks, err := sup.Tracks()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "S_HDMV/PGS", tracks[0].CodecID)
	assert.Equal(t, "und", tracks[0].Language)
	assert.Equal(t, "movie", tracks[0].Name)
}

func TestSupFile_AssemblesDisplaySets(t *testing.T) {
	// Two display sets: segments between END markers belong together.
	path := writeSup(t,
		supSegment(90000, 0x16, []byte{0xAA, 0xBB}),
		supSegment(90000, 0x80, nil),
		supSegment(180000, 0x16, []byte{0xCC}),
		supSegment(180000, 0x80, nil),
	)

	sup, err := OpenSup(path)
	require.NoError(t, err)
	defer sup.Close()

	ctx := context.Background()

	first, err := sup.NextPacket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Second, first.Start)
	assert.Equal(t, []byte{
		0x16, 0x00, 0x02, 0xAA, 0xBB,
		0x80, 0x00, 0x00,
	}, first.Payload)

	second, err := sup.NextPacket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, second.Start)
	assert.Equal(t, []byte{
		0x16, 0x00, 0x01, 0xCC,
		0x80, 0x00, 0x00,
	}, second.Payload)

	_, err = sup.NextPacket(ctx, 0)
	assert.ErrorIs(t, err, ErrEndOfTrack)
}

func TestSupFile_TruncatedDisplaySet(t *testing.T) {
	// Composition segment with no END marker before EOF.
	path := writeSup(t, supSegment(0, 0x16, []byte{0x01}))

	sup, err := OpenSup(path)
	require.NoError(t, err)
	defer sup.Close()

	_, err = sup.NextPacket(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidSupFile)
}

func TestSupFile_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movie.sup")
	require.NoError(t, os.WriteFile(path, []byte("XX0000000000000"), 0o644))

	sup, err := OpenSup(path)
	require.NoError(t, err)
	defer sup.Close()

	_, err = sup.NextPacket(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidSupFile)
}

func TestSupFile_UnknownTrack(t *testing.T) {
	path := writeSup(t, supSegment(0, 0x80, nil))

	sup, err := OpenSup(path)
	require.NoError(t, err)
	defer sup.Close()

	_, err = sup.NextPacket(context.Background(), 7)
	require.Error(t, err)
}
