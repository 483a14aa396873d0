package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Filesystem
	WorkspaceRoot string // Per-job scratch directories live under here
	OutputDir     string // Final videos are written here before (optional) upload

	// Object storage (optional — when unset, outputs are served from OutputDir)
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string

	// Render defaults (overridable per request)
	DefaultWidth  int
	DefaultHeight int
	DefaultFPS    int

	// Timing allocation bounds
	MinSceneSeconds float64
	MaxSceneSeconds float64

	// Concurrency and timeouts
	MaxConcurrentRenders int     // Jobs processed simultaneously
	MaxConcurrentEncodes int64   // ffmpeg/ffprobe processes alive at once, across all jobs
	EncodeTimeoutScale   float64 // Seconds of wall clock allowed per second of clip duration
	EncodeTimeoutFloorS  int     // Minimum per-invocation timeout in seconds
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		WorkspaceRoot:      getEnv("WORKSPACE_ROOT", "/tmp/storyreel/render"),
		OutputDir:          getEnv("OUTPUT_DIR", "/var/lib/storyreel/videos"),
		StorageURL:         getEnv("STORAGE_URL", ""),
		StorageServiceKey:  getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", "storyreel-videos"),

		DefaultWidth:  getEnvInt("RENDER_WIDTH", 1080),
		DefaultHeight: getEnvInt("RENDER_HEIGHT", 1920),
		DefaultFPS:    getEnvInt("RENDER_FPS", 30),

		MinSceneSeconds: getEnvFloat("MIN_SCENE_SECONDS", 3),
		MaxSceneSeconds: getEnvFloat("MAX_SCENE_SECONDS", 20),

		MaxConcurrentRenders: getEnvInt("MAX_CONCURRENT_RENDERS", 2),
		MaxConcurrentEncodes: int64(getEnvInt("MAX_CONCURRENT_ENCODES", 4)),
		EncodeTimeoutScale:   getEnvFloat("ENCODE_TIMEOUT_SCALE", 10),
		EncodeTimeoutFloorS:  getEnvInt("ENCODE_TIMEOUT_FLOOR_SECONDS", 120),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.MinSceneSeconds <= 0 || cfg.MaxSceneSeconds <= cfg.MinSceneSeconds {
		return nil, fmt.Errorf("invalid scene bounds: min=%.1f max=%.1f", cfg.MinSceneSeconds, cfg.MaxSceneSeconds)
	}

	if cfg.MaxConcurrentRenders < 1 || cfg.MaxConcurrentEncodes < 1 {
		return nil, fmt.Errorf("concurrency limits must be at least 1")
	}

	// Object storage is all-or-nothing
	if (cfg.StorageURL == "") != (cfg.StorageServiceKey == "") {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY must be set together")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
