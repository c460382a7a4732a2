// Package config loads server configuration and persists user settings.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server settings in correct types.
type Config struct {
	Addr        string
	DataDir     string
	DatabaseURL string

	ModelsDir    string
	TempDir      string
	OutputDir    string
	SettingsPath string

	GeneratorCmd  []string
	GeneratorDir  string
	FFmpegPath    string
	FFprobePath   string
	HFCLIPath     string
	NvidiaSMIPath string

	MaxConcurrentJobs  int
	QueueWait          time.Duration
	StreamIdleTimeout  time.Duration
	CancelOnDisconnect bool
	KeepFailedJobs     bool

	JanitorSchedule string
	JanitorMaxAge   time.Duration

	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() *Config {
	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Addr:        getEnv("ADDR", ":8000"),
		DataDir:     dataDir,
		DatabaseURL: getEnv("DATABASE_URL", filepath.Join(dataDir, "library.db")),

		ModelsDir:    getEnv("MODELS_DIR", "models"),
		TempDir:      getEnv("TEMP_DIR", filepath.Join(dataDir, "temp")),
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(dataDir, "outputs")),
		SettingsPath: getEnv("SETTINGS_PATH", filepath.Join(dataDir, "settings.json")),

		GeneratorCmd:  strings.Fields(getEnv("GENERATOR_CMD", "bash generate.sh")),
		GeneratorDir:  getEnv("GENERATOR_DIR", "SongGeneration"),
		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:   getEnv("FFPROBE_PATH", "ffprobe"),
		HFCLIPath:     getEnv("HF_CLI_PATH", "huggingface-cli"),
		NvidiaSMIPath: getEnv("NVIDIA_SMI_PATH", "nvidia-smi"),

		MaxConcurrentJobs:  getEnvAsInt("MAX_CONCURRENT_JOBS", 1),
		QueueWait:          getEnvAsDuration("QUEUE_WAIT", 10*time.Second),
		StreamIdleTimeout:  getEnvAsDuration("STREAM_IDLE_TIMEOUT", 600*time.Second),
		CancelOnDisconnect: getEnvAsBool("CANCEL_ON_DISCONNECT", false),
		KeepFailedJobs:     getEnvAsBool("KEEP_FAILED_JOBS", false),

		JanitorSchedule: getEnv("JANITOR_SCHEDULE", "@every 15m"),
		JanitorMaxAge:   getEnvAsDuration("JANITOR_MAX_AGE", 6*time.Hour),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:4200")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	validate(cfg)

	return cfg
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	str := getEnv(key, "")
	if val, err := strconv.Atoi(str); err == nil {
		return val
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	str := getEnv(key, "")
	if val, err := strconv.ParseBool(str); err == nil {
		return val
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	if d, err := time.ParseDuration(str); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(str); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validate resets values that would break the server.
func validate(cfg *Config) {
	if cfg.MaxConcurrentJobs < 1 {
		slog.Warn("MAX_CONCURRENT_JOBS must be at least 1, using 1", "value", cfg.MaxConcurrentJobs)
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = 600 * time.Second
	}
	if len(cfg.GeneratorCmd) == 0 {
		slog.Warn("GENERATOR_CMD is empty, using default")
		cfg.GeneratorCmd = []string{"bash", "generate.sh"}
	}
	if cfg.JanitorMaxAge <= 0 {
		cfg.JanitorMaxAge = 6 * time.Hour
	}
}
