// Package config provides centralized configuration management for the
// merge service. It loads settings from environment variables with
// sensible defaults and validates everything on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Upload  UploadConfig
	Merge   MergeConfig
	Cache   CacheConfig
	Rate    RateLimitConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds upload handling settings.
type UploadConfig struct {
	// MaxFileSize is the maximum total upload size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MinFiles is the minimum number of files a merge request must carry (default: 2)
	MinFiles int `env:"UPLOAD_MIN_FILES" default:"2"`
}

// MergeConfig holds merge job settings.
type MergeConfig struct {
	// Workers bounds parallel (sheet, source) reads within one job (default: 4)
	Workers int `env:"MERGE_WORKERS" default:"4"`

	// MaxConcurrent is the maximum number of parallel merge jobs (default: 4)
	MaxConcurrent int `env:"MERGE_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a merge slot (default: 30s)
	MaxWaitTime time.Duration `env:"MERGE_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single merge job (default: 10m)
	Timeout time.Duration `env:"MERGE_TIMEOUT" default:"10m"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// TTL is how long a cached artifact stays valid (default: 15m)
	TTL time.Duration `env:"CACHE_TTL" default:"15m"`

	// MaxEntries bounds the number of cached artifacts (default: 32)
	MaxEntries int `env:"CACHE_MAX_ENTRIES" default:"32"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
