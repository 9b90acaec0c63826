package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DataDir         string
	LogLevel        string
	MaxUploadSizeMB int
	MaxEnqueuedJobs int
	Retention       time.Duration
	CleanupInterval time.Duration
	VideoWorkers    int
	AudioWorkers    int
	ImageWorkers    int
	PDFWorkers      int
	FFmpegPath      string
	FFprobePath     string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:     getEnv("DATA_DIR", "/data"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
	}

	ints := []struct {
		key   string
		def   int
		min   int
		value *int
	}{
		{"PORT", 8080, 1, &cfg.Port},
		{"MAX_UPLOAD_SIZE_MB", 2048, 1, &cfg.MaxUploadSizeMB},
		{"MAX_ENQUEUED_JOBS", 50, 0, &cfg.MaxEnqueuedJobs},
		// 0 leaves the pool at its host based size.
		{"VIDEO_WORKERS", 0, 0, &cfg.VideoWorkers},
		{"AUDIO_WORKERS", 0, 0, &cfg.AudioWorkers},
		{"IMAGE_WORKERS", 0, 0, &cfg.ImageWorkers},
		{"PDF_WORKERS", 0, 0, &cfg.PDFWorkers},
	}
	for _, f := range ints {
		v, err := getInt(f.key, f.def, f.min)
		if err != nil {
			return nil, err
		}
		*f.value = v
	}

	retention, err := getInt("RETENTION_SECONDS", 3*60*60, 1)
	if err != nil {
		return nil, err
	}
	cfg.Retention = time.Duration(retention) * time.Second

	interval, err := getInt("CLEANUP_INTERVAL_SECONDS", 5*60, 1)
	if err != nil {
		return nil, err
	}
	cfg.CleanupInterval = time.Duration(interval) * time.Second

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue, minValue int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < minValue {
		return 0, fmt.Errorf("invalid %s: must be at least %d", key, minValue)
	}
	return v, nil
}
