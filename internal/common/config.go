package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Service    ServiceConfig
	Poll       PollConfig
	Validation ValidationConfig
	Watch      WatchConfig
	Health     HealthConfig
	Log        LogConfig
}

// ServiceConfig describes how to reach the document service
type ServiceConfig struct {
	Transport   string // "http" or "grpc"
	BaseURL     string
	GRPCTarget  string
	APIKey      string
	HTTPTimeout time.Duration
}

// PollConfig holds polling cadence and session lifetime
type PollConfig struct {
	Interval        time.Duration
	Timeout         time.Duration
	AnnounceRetries bool
}

// ValidationConfig holds the rules applied to results and uploads
type ValidationConfig struct {
	MinResultLength int
	MaxUploadBytes  int64
}

// WatchConfig holds directory-watch and worker settings
type WatchConfig struct {
	Dirs      []string
	Workers   int
	QueueSize int
	Debounce  time.Duration
}

// HealthConfig holds the gRPC health endpoint address
type HealthConfig struct {
	Addr string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Transport:   strings.ToLower(getEnv("JOBWATCH_TRANSPORT", TransportHTTP)),
			BaseURL:     strings.TrimRight(getEnv("JOBWATCH_BASE_URL", "http://localhost:8000"), "/"),
			GRPCTarget:  getEnv("JOBWATCH_GRPC_TARGET", "localhost:9090"),
			APIKey:      getEnv("JOBWATCH_API_KEY", ""),
			HTTPTimeout: getEnvAsDuration("JOBWATCH_HTTP_TIMEOUT", 60*time.Second),
		},
		Poll: PollConfig{
			Interval:        getEnvAsDuration("POLL_INTERVAL", 2*time.Second),
			Timeout:         getEnvAsDuration("POLL_TIMEOUT", 30*time.Minute),
			AnnounceRetries: getEnvAsBool("POLL_ANNOUNCE_RETRIES", true),
		},
		Validation: ValidationConfig{
			MinResultLength: getEnvAsInt("MIN_RESULT_LENGTH", 50),
			MaxUploadBytes:  getEnvAsInt64("MAX_UPLOAD_BYTES", 200*1024*1024),
		},
		Watch: WatchConfig{
			Dirs:      getEnvAsList("WATCH_DIRS"),
			Workers:   getEnvAsInt("WATCH_WORKERS", 4),
			QueueSize: getEnvAsInt("WATCH_QUEUE_SIZE", 64),
			Debounce:  getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
		},
		Health: HealthConfig{
			Addr: getEnv("HEALTH_ADDR", ":8081"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("JOBWATCH_TRANSPORT", c.Service.Transport, OneOf(TransportHTTP, TransportGRPC))
	switch c.Service.Transport {
	case TransportHTTP:
		v.Field("JOBWATCH_BASE_URL", c.Service.BaseURL, Required, AbsoluteURL)
	case TransportGRPC:
		v.Field("JOBWATCH_GRPC_TARGET", c.Service.GRPCTarget, Required)
	}
	v.Field("JOBWATCH_HTTP_TIMEOUT", c.Service.HTTPTimeout, Positive)
	v.Field("POLL_INTERVAL", c.Poll.Interval, Positive)
	v.Field("POLL_TIMEOUT", c.Poll.Timeout, Positive)
	v.Check(c.Poll.Timeout > c.Poll.Interval, "POLL_TIMEOUT", c.Poll.Timeout, "must be greater than POLL_INTERVAL")
	v.Field("MIN_RESULT_LENGTH", c.Validation.MinResultLength, NonNegative)
	v.Field("MAX_UPLOAD_BYTES", c.Validation.MaxUploadBytes, Positive)
	v.Field("WATCH_WORKERS", c.Watch.Workers, Positive)
	v.Field("WATCH_QUEUE_SIZE", c.Watch.QueueSize, Positive)
	v.Field("LOG_LEVEL", c.Log.Level, OneOf("debug", "info", "warn", "error"))
	v.Field("LOG_FORMAT", c.Log.Format, OneOf("json", "text"))
	return v.AppError(CodeConfig)
}

// NewLogger builds the process logger from LogConfig.
func NewLogger(cfg LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
