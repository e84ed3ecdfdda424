package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/subforge/subex/internal/jobs"
	"github.com/subforge/subex/internal/subtitle"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "subex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	job := &jobs.ExtractionJob{
		ID:        "job-1",
		Source:    "manual",
		DedupeKey: "a.mkv|track3|eng",
		Payload: jobs.JobPayload{
			MediaFile:  "/media/a.mkv",
			OutputFile: "/media/a.eng.srt",
			Language:   "eng",
		},
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, job.Status, all[0].Status)
	assert.Equal(t, job.Payload.MediaFile, all[0].Payload.MediaFile)
	assert.Equal(t, job.Payload.OutputFile, all[0].Payload.OutputFile)
	assert.Equal(t, job.Payload.Language, all[0].Payload.Language)
}

func TestSQLiteStore_CheckpointAndCleanup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	jobID := "job-1"
	require.NoError(t, store.SaveUnitCheckpoint(ctx, jobID, 0, 4, []string{"First line.", "Second line."}))
	require.NoError(t, store.SaveUnitCheckpoint(ctx, jobID, 4, 8, []string{"Third line."}))

	cps, err := store.LoadUnitCheckpoints(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, 0, cps[0].UnitStart)
	assert.Equal(t, []string{"First line.", "Second line."}, cps[0].RecognizedLines)

	require.NoError(t, store.ClearJobTemp(ctx, jobID))
	cps, err = store.LoadUnitCheckpoints(ctx, jobID)
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestSQLiteStore_SubtitleCacheRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	entry := SubtitleCacheEntry{
		CacheKey:  "/media/a.mkv|s:0",
		MediaPath: "/media/a.mkv",
		JobID:     "job-1",
		PathHint:  "embedded://a",
		File: subtitle.File{
			Format:   "SRT",
			Language: language.English,
			Lines: []subtitle.Line{
				{Index: 1, StartTime: time.Second, EndTime: 2 * time.Second, Text: "hello", Confidence: 0.93},
			},
		},
		IsTemp: true,
	}
	require.NoError(t, store.PutSubtitleCache(ctx, entry))

	cached, ok, err := store.GetSubtitleCache(ctx, entry.CacheKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.File.Format, cached.Format)
	require.Len(t, cached.Lines, 1)
	assert.Equal(t, "hello", cached.Lines[0].Text)
	assert.InDelta(t, 0.93, cached.Lines[0].Confidence, 1e-9)

	require.NoError(t, store.ClearJobTemp(ctx, "job-1"))
	_, ok, err = store.GetSubtitleCache(ctx, entry.CacheKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_MediaMetaCacheTTL(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.PutMediaMetaCache(ctx, MediaMetaCache{
		MediaPath:         "/media/a.mkv",
		TargetLanguage:    "eng",
		ExternalLanguages: []string{"de"},
		EmbeddedLanguages: []string{"de", "fr"},
		HasTargetExternal: false,
		HasTargetEmbedded: false,
		ExpiresAt:         now.Add(30 * time.Minute),
		UpdatedAt:         now,
	}))

	meta, ok, err := store.GetMediaMetaCache(ctx, "/media/a.mkv", "eng", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"de"}, meta.ExternalLanguages)

	_, ok, err = store.GetMediaMetaCache(ctx, "/media/a.mkv", "eng", now.Add(31*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_DeleteJobData(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnitCheckpoint(ctx, "job-9", 0, 4, []string{"x"}))
	require.NoError(t, store.PutSubtitleCache(ctx, SubtitleCacheEntry{
		CacheKey: "k", JobID: "job-9", File: subtitle.File{Format: "SRT"},
	}))

	require.NoError(t, store.DeleteJobData(ctx, "job-9"))

	cps, err := store.LoadUnitCheckpoints(ctx, "job-9")
	require.NoError(t, err)
	assert.Empty(t, cps)
	_, ok, err := store.GetSubtitleCache(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
