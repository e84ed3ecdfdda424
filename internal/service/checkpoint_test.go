package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subforge/subex/internal/pipeline"
)

func TestUnitCheckpointStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	checkpoints, err := newUnitCheckpointStore(store, "job-cp")
	require.NoError(t, err)

	_, ok, err := checkpoints.load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	events := make([]pipeline.Recognized, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, pipeline.Recognized{
			Index:      i,
			Start:      time.Duration(i) * time.Second,
			End:        time.Duration(i+1) * time.Second,
			Text:       "line",
			Confidence: 0.5,
		})
	}
	// 5 events with unit size 2 -> units [0,2) [2,4) [4,5)
	require.NoError(t, checkpoints.save(ctx, events, 2))

	restored, ok, err := checkpoints.load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, restored, 5)
	assert.Equal(t, events, restored)

	require.NoError(t, checkpoints.clear(ctx))
	_, ok, err = checkpoints.load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewUnitCheckpointStore_Validates(t *testing.T) {
	store := newTestStore(t)

	_, err := newUnitCheckpointStore(nil, "job-1")
	require.Error(t, err)

	_, err = newUnitCheckpointStore(store, "")
	require.Error(t, err)
}
