package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Frame source kinds
const (
	SourceCamera   = "camera"
	SourceSnapshot = "snapshot"
	SourceNone     = "none"
)

// DefaultInitialText is shown before any text has been selected
const DefaultInitialText = "Tap button to start scanning"

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	RecognitionTimeout time.Duration
	MaxRequestBodySize int64

	// Frame source
	FrameSource   string
	CameraDevice  string
	SnapshotURL   string

	// SnapshotInsecureTLS accepts self-signed certificates from the snapshot host
	SnapshotInsecureTLS bool
	FrameInterval time.Duration

	// Recognition
	ConfidenceThreshold  float64
	RecognitionLanguages []string
	RecognitionMode      string
	LanguageCorrection   bool
	MaxFrameWidth        int
	Workers              int

	// Frame gate
	SkipSimilarFrames bool
	BlurThreshold     float64

	// Overlay viewport
	ViewportWidth  int
	ViewportHeight int

	// Azure blob access for recognize-by-URL
	AzureAccountName string
	AzureAccountKey  string

	// Shown until the first selection
	InitialText string

	LogLevel string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob credentials are configured
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		RecognitionTimeout: parseDurationOrDefault("RECOGNITION_TIMEOUT", 5*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB

		FrameSource:   strings.ToLower(getEnvOrDefault("FRAME_SOURCE", SourceCamera)),
		CameraDevice:  getEnvOrDefault("CAMERA_DEVICE", "0"),
		SnapshotURL:   os.Getenv("SNAPSHOT_URL"),

		SnapshotInsecureTLS: parseBoolOrDefault("SNAPSHOT_INSECURE_TLS", false),
		FrameInterval: parseDurationOrDefault("FRAME_INTERVAL", 100*time.Millisecond),

		ConfidenceThreshold:  parseFloatOrDefault("CONFIDENCE_THRESHOLD", 0.5),
		RecognitionLanguages: parseListOrDefault("RECOGNITION_LANGUAGES", []string{"pt-BR", "en-US", "es-ES"}),
		RecognitionMode:      strings.ToLower(getEnvOrDefault("RECOGNITION_MODE", "accurate")),
		LanguageCorrection:   parseBoolOrDefault("LANGUAGE_CORRECTION", true),
		MaxFrameWidth:        int(parseIntOrDefault("MAX_FRAME_WIDTH", 1280)),
		Workers:              int(parseIntOrDefault("WORKERS", 0)),

		SkipSimilarFrames: parseBoolOrDefault("SKIP_SIMILAR_FRAMES", true),
		BlurThreshold:     parseFloatOrDefault("BLUR_THRESHOLD", 0),

		ViewportWidth:  int(parseIntOrDefault("VIEWPORT_WIDTH", 390)),
		ViewportHeight: int(parseIntOrDefault("VIEWPORT_HEIGHT", 844)),

		AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),

		InitialText: getEnvOrDefault("INITIAL_TEXT", DefaultInitialText),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.RecognitionTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, recognition=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.RecognitionTimeout)
	}
	switch c.FrameSource {
	case SourceCamera, SourceNone:
	case SourceSnapshot:
		if c.SnapshotURL == "" {
			return fmt.Errorf("SNAPSHOT_URL is required when FRAME_SOURCE=%s", SourceSnapshot)
		}
	default:
		return fmt.Errorf("invalid FRAME_SOURCE: %q", c.FrameSource)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("FRAME_INTERVAL must be > 0 (got %s)", c.FrameInterval)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0,1] (got %v)", c.ConfidenceThreshold)
	}
	if len(c.RecognitionLanguages) == 0 {
		return fmt.Errorf("RECOGNITION_LANGUAGES must not be empty")
	}
	if c.RecognitionMode != "accurate" && c.RecognitionMode != "fast" {
		return fmt.Errorf("invalid RECOGNITION_MODE: %q", c.RecognitionMode)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive (got %dx%d)", c.ViewportWidth, c.ViewportHeight)
	}
	if c.MaxFrameWidth < 0 || c.Workers < 0 || c.BlurThreshold < 0 {
		return fmt.Errorf("MAX_FRAME_WIDTH, WORKERS and BLUR_THRESHOLD must not be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// parseListOrDefault reads a comma separated list, dropping empty items
func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
