package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/subforge/subex/internal/imageproc"
	"github.com/subforge/subex/pkg/log"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// OCR Configuration:
// - OCR_CMD: recognition binary to exec (default: tesseract)
// - OCR_LANGUAGE: recognition language passed to the engine (default: eng)
// - OCR_TIMEOUT: per-image recognition timeout in seconds (default: 30)
// - OCR_MIN_CONFIDENCE: confidence floor in [0,1]; lower results become
//   soft failures (default: 0, accept everything)
//
// Preprocess Configuration:
// - PREPROCESS_TRANSPARENCY_THRESHOLD: alpha below this is background (default: 12)
// - PREPROCESS_BINARIZATION_THRESHOLD: luminance at or above this is text (default: 140)
// - PREPROCESS_UPSCALE_FACTOR: raster upscale before recognition (default: 3)
// - PREPROCESS_INTERPOLATION: nearest or linear (default: nearest)
//
// Pipeline Configuration:
// - PIPELINE_WORKERS: concurrent events per track (default: 4)
// - PIPELINE_UNIT_SIZE: events per progress unit (default: 4)
// - CUE_DEFAULT_DURATION_MS: display time for cues without a stop date (default: 3000)
//
// Media Directory Configuration:
// - MOVIE_DIR: Movie directory (default: /movies)
// - ANIMATION_DIR: Animation directory (default: /animations)
// - TELEPLAY_DIR: Teleplay directory (default: /teleplays)
// - SHOW_DIR: Show directory (default: /shows)
// - DOCUMENTARY_DIR: Documentary directory (default: /documentaries)
//
// Extraction Configuration:
// - TARGET_LANGUAGE: language the extracted text subtitle should serve (default: en)
// - TRACK_LANGUAGE: restrict extraction to tracks of this language (default: any)
// - CRON_EXPR: library scan schedule (default: 0 0 * * *)
//
// Jobs Configuration:
// - JOB_WORKERS: concurrent extraction jobs (default: 2)
// - DB_PATH: sqlite database path (default: /app/config/subex.db)
//
// System Configuration:
// - PUID: User ID (default: 1000)
// - PGID: Group ID (default: 1000)
// - TZ: Timezone (default: UTC)

type Config struct {
	OCR        OCRConfig        `json:"ocr"`
	Preprocess PreprocessConfig `json:"preprocess"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Media      MediaConfig      `json:"media"`
	Extract    ExtractConfig    `json:"extract"`
	Jobs       JobsConfig       `json:"jobs"`
	System     SystemConfig     `json:"system"`
}

// OCRConfig holds the configuration for the recognition engine.
type OCRConfig struct {
	Command       string  `json:"command"`
	Language      string  `json:"language"`
	Timeout       int     `json:"timeout"`
	MinConfidence float64 `json:"min_confidence"`
}

// PreprocessConfig holds the bitmap preprocessing thresholds.
type PreprocessConfig struct {
	TransparencyThreshold int     `json:"transparency_threshold"`
	BinarizationThreshold int     `json:"binarization_threshold"`
	UpscaleFactor         float64 `json:"upscale_factor"`
	Interpolation         string  `json:"interpolation"`
}

// Options bridges the preprocessing section into imageproc options.
func (c PreprocessConfig) Options() imageproc.Options {
	return imageproc.Options{
		TransparencyThreshold: uint8(c.TransparencyThreshold),
		BinarizationThreshold: uint8(c.BinarizationThreshold),
		UpscaleFactor:         c.UpscaleFactor,
		Interpolation:         imageproc.Interpolation(c.Interpolation),
	}
}

// PipelineConfig holds the orchestration knobs.
type PipelineConfig struct {
	Workers              int `json:"workers"`
	UnitSize             int `json:"unit_size"`
	CueDefaultDurationMS int `json:"cue_default_duration_ms"`
}

// MediaConfig holds the configuration for media directories.
type MediaConfig struct {
	MovieDir       string `json:"movie_dir"`
	AnimationDir   string `json:"animation_dir"`
	TeleplayDir    string `json:"teleplay_dir"`
	ShowDir        string `json:"show_dir"`
	DocumentaryDir string `json:"documentary_dir"`
}

func (c MediaConfig) MediaPaths() []string {
	ret := make([]string, 0)
	if c.MovieDir != "" {
		ret = append(ret, c.MovieDir)
	}
	if c.AnimationDir != "" {
		ret = append(ret, c.AnimationDir)
	}
	if c.TeleplayDir != "" {
		ret = append(ret, c.TeleplayDir)
	}
	if c.ShowDir != "" {
		ret = append(ret, c.ShowDir)
	}
	if c.DocumentaryDir != "" {
		ret = append(ret, c.DocumentaryDir)
	}
	return ret
}

// ExtractConfig holds the extraction target and schedule.
type ExtractConfig struct {
	TargetLanguage language.Tag `json:"target_language"`
	TrackLanguage  string       `json:"track_language"`
	CronExpr       string       `json:"cron_expr"`
}

// JobsConfig holds the job queue configuration.
type JobsConfig struct {
	Workers int    `json:"workers"`
	DBPath  string `json:"db_path"`
}

// SystemConfig holds the system configuration.
type SystemConfig struct {
	PUID int    `json:"puid"`
	PGID int    `json:"pgid"`
	TZ   string `json:"tz"`
}

// Option is a function type for configuring Config.
type Option func(*Config)

// New creates a Config from environment variables and options. A .env
// file in the working directory is loaded first when present.
func New(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		OCR: OCRConfig{
			Command:       getEnvString("OCR_CMD", "tesseract"),
			Language:      getEnvString("OCR_LANGUAGE", "eng"),
			Timeout:       getEnvInt("OCR_TIMEOUT", 30),
			MinConfidence: getEnvFloat("OCR_MIN_CONFIDENCE", 0),
		},
		Preprocess: PreprocessConfig{
			TransparencyThreshold: getEnvInt("PREPROCESS_TRANSPARENCY_THRESHOLD", 12),
			BinarizationThreshold: getEnvInt("PREPROCESS_BINARIZATION_THRESHOLD", 140),
			UpscaleFactor:         getEnvFloat("PREPROCESS_UPSCALE_FACTOR", 3),
			Interpolation:         getEnvString("PREPROCESS_INTERPOLATION", string(imageproc.InterpNearest)),
		},
		Pipeline: PipelineConfig{
			Workers:              getEnvInt("PIPELINE_WORKERS", 4),
			UnitSize:             getEnvInt("PIPELINE_UNIT_SIZE", 4),
			CueDefaultDurationMS: getEnvInt("CUE_DEFAULT_DURATION_MS", 3000),
		},
		Media: MediaConfig{
			MovieDir:       getEnvString("MOVIE_DIR", "/movies"),
			AnimationDir:   getEnvString("ANIMATION_DIR", "/animations"),
			TeleplayDir:    getEnvString("TELEPLAY_DIR", "/teleplays"),
			ShowDir:        getEnvString("SHOW_DIR", "/shows"),
			DocumentaryDir: getEnvString("DOCUMENTARY_DIR", "/documentaries"),
		},
		Extract: ExtractConfig{
			TrackLanguage: getEnvString("TRACK_LANGUAGE", ""),
			CronExpr:      getEnvString("CRON_EXPR", "0 0 * * *"),
		},
		Jobs: JobsConfig{
			Workers: getEnvInt("JOB_WORKERS", 2),
			DBPath:  getEnvString("DB_PATH", "/app/config/subex.db"),
		},
		System: SystemConfig{
			PUID: getEnvInt("PUID", 1000),
			PGID: getEnvInt("PGID", 1000),
			TZ:   getEnvString("TZ", "UTC"),
		},
	}

	target, err := language.Parse(getEnvString("TARGET_LANGUAGE", "en"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_LANGUAGE: %w", err)
	}
	config.Extract.TargetLanguage = target

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: %+v", config)
	return config, nil
}

// validate checks if all required configuration is properly set.
// Preprocess thresholds fail fast here, before any image is touched.
func (c *Config) validate() error {
	if c.OCR.Command == "" {
		return fmt.Errorf("OCR_CMD is required")
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 1 {
		return fmt.Errorf("OCR_MIN_CONFIDENCE must be in [0,1], got %v", c.OCR.MinConfidence)
	}
	if c.Preprocess.TransparencyThreshold < 0 || c.Preprocess.TransparencyThreshold > 255 {
		return fmt.Errorf("%w: transparency threshold must be in [0,255], got %d",
			imageproc.ErrInvalidConfig, c.Preprocess.TransparencyThreshold)
	}
	if c.Preprocess.BinarizationThreshold < 0 || c.Preprocess.BinarizationThreshold > 255 {
		return fmt.Errorf("%w: binarization threshold must be in [0,255], got %d",
			imageproc.ErrInvalidConfig, c.Preprocess.BinarizationThreshold)
	}
	if err := c.Preprocess.Options().Validate(); err != nil {
		return err
	}
	return nil
}

// OCRTimeout returns the per-image recognition deadline.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCR.Timeout) * time.Second
}

// CueDefaultDuration returns the fallback display time for cues that
// carry no stop date.
func (c *Config) CueDefaultDuration() time.Duration {
	return time.Duration(c.Pipeline.CueDefaultDurationMS) * time.Millisecond
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
