package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// App holds the fully processed daemon configuration. Values come from the
// environment (optionally seeded from a .env file) with sane defaults, so a
// bare `playerd -m <url>` works out of the box.
type App struct {
	ListenAddr  string
	ManifestURL string
	LogLevel    string
	UserAgent   string

	// Buffering policy, seconds.
	ForwardBufferSeconds float64
	BackBufferSeconds    float64

	// ABR tuning.
	DefaultBandwidthBps float64
	ABRSafetyFactor     float64

	// PreloadFull gates the segment pipeline: when false the engine only
	// resolves metadata and never fetches media.
	PreloadFull bool

	// ShutdownTimeoutSeconds bounds graceful HTTP shutdown on exit.
	ShutdownTimeoutSeconds int
}

// Load reads an optional .env file and assembles the configuration from the
// environment. A missing .env is not an error.
func Load(paths ...string) *App {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	_ = godotenv.Load(paths...)

	return &App{
		ListenAddr:             GetEnv("LISTEN_ADDR", ":8080"),
		ManifestURL:            GetEnv("MANIFEST_URL", ""),
		LogLevel:               GetEnv("LOG_LEVEL", "info"),
		UserAgent:              GetEnv("USER_AGENT", "hlsplayd/1.0"),
		ForwardBufferSeconds:   GetEnvFloat("FORWARD_BUFFER_SECONDS", 30),
		BackBufferSeconds:      GetEnvFloat("BACK_BUFFER_SECONDS", 30),
		DefaultBandwidthBps:    GetEnvFloat("DEFAULT_BANDWIDTH_BPS", 1_000_000),
		ABRSafetyFactor:        GetEnvFloat("ABR_SAFETY_FACTOR", 0.95),
		PreloadFull:            GetEnvBool("PRELOAD_FULL", true),
		ShutdownTimeoutSeconds: GetEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 5),
	}
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid number.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid boolean.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
