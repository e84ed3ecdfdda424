package service

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/subforge/subex/internal/config"
	"github.com/subforge/subex/internal/jobs"
	"github.com/subforge/subex/internal/ocr"
	"github.com/subforge/subex/internal/persistence"
)

// fakeEngine replays a fixed recognition result.
type fakeEngine struct {
	result ocr.Result
	err    error
}

func (f *fakeEngine) Recognize(_ context.Context, _ *image.Gray) (ocr.Result, error) {
	return f.result, f.err
}

func (f *fakeEngine) Close() error { return nil }

func testConfig(moviesDir string) config.Config {
	return config.Config{
		OCR: config.OCRConfig{
			Command:  "tesseract",
			Language: "eng",
			Timeout:  5,
		},
		Preprocess: config.PreprocessConfig{
			TransparencyThreshold: 12,
			BinarizationThreshold: 140,
			UpscaleFactor:         3,
			Interpolation:         "nearest",
		},
		Pipeline: config.PipelineConfig{
			Workers:              2,
			UnitSize:             4,
			CueDefaultDurationMS: 3000,
		},
		Media: config.MediaConfig{
			MovieDir: moviesDir,
		},
		Extract: config.ExtractConfig{
			TargetLanguage: language.English,
			CronExpr:       "0 0 * * *",
		},
		Jobs: config.JobsConfig{Workers: 1},
	}
}

func newTestStore(t *testing.T) *persistence.SQLiteStore {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "subex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestService(t *testing.T, moviesDir string, engine ocr.Engine) (*ExtractService, *jobs.Queue) {
	t.Helper()
	store := newTestStore(t)
	queue := jobs.NewQueue(1, store)
	svc := NewExtractService(
		testConfig(moviesDir),
		cron.New(),
		store,
		queue,
		WithEngineFactory(func() ocr.Engine { return engine }),
	)
	return svc, queue
}

func TestScanAndEnqueue_EnqueuesBitmapOnlyMedia(t *testing.T) {
	movies := t.TempDir()
	filmDir := filepath.Join(movies, "Film")
	require.NoError(t, os.MkdirAll(filmDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(filmDir, "movie.mkv"), []byte("m"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filmDir, "movie.idx"), []byte("i"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filmDir, "movie.sub"), []byte("s"), 0o644))

	svc, queue := newTestService(t, movies, &fakeEngine{})

	enqueued, err := svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)

	jobList := queue.List()
	require.Len(t, jobList, 1)
	payload := jobList[0].Payload
	assert.Equal(t, filepath.Join(filmDir, "movie.mkv"), payload.MediaFile)
	assert.Equal(t, filepath.Join(filmDir, "movie.idx"), payload.SidecarFile)
	assert.Equal(t, filepath.Join(filmDir, "movie.subex.en.srt"), payload.OutputFile)

	// second scan dedupes against the pending job
	enqueued, err = svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued)
	assert.Len(t, queue.List(), 1)
}

func TestScanAndEnqueue_SkipsMediaWithTargetSubtitle(t *testing.T) {
	movies := t.TempDir()
	filmDir := filepath.Join(movies, "Film")
	require.NoError(t, os.MkdirAll(filmDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(filmDir, "movie.mkv"), []byte("m"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filmDir, "movie.idx"), []byte("i"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filmDir, "movie.sub"), []byte("s"), 0o644))
	// extraction output from an earlier run
	require.NoError(t, os.WriteFile(filepath.Join(filmDir, "movie.subex.en.srt"), []byte("1\n"), 0o644))

	svc, queue := newTestService(t, movies, &fakeEngine{})

	enqueued, err := svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued)
	assert.Empty(t, queue.List())
}

func TestSchedule_RegistersCronEntry(t *testing.T) {
	cronEngine := cron.New()
	store := newTestStore(t)
	queue := jobs.NewQueue(1, store)
	svc := NewExtractService(testConfig(t.TempDir()), cronEngine, store, queue,
		WithEngineFactory(func() ocr.Engine { return &fakeEngine{} }))
	defer svc.Stop()

	require.NoError(t, svc.Schedule(context.Background()))
	assert.Len(t, cronEngine.Entries(), 1)
}

func TestSchedule_RejectsInvalidCronExpr(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Extract.CronExpr = "not a cron expr"

	store := newTestStore(t)
	queue := jobs.NewQueue(1, store)
	svc := NewExtractService(cfg, cron.New(), store, queue,
		WithEngineFactory(func() ocr.Engine { return &fakeEngine{} }))
	defer svc.Stop()

	require.Error(t, svc.Schedule(context.Background()))
}

func TestOutputPath(t *testing.T) {
	svc, _ := newTestService(t, t.TempDir(), &fakeEngine{})

	got := svc.outputPath("/movies/Film/movie.mkv")
	assert.Equal(t, "/movies/Film/movie.subex.en.srt", got)
}
