// Package config reads runtime settings from the environment. A .env file is
// loaded into the environment by the root command before these are read.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	DefaultImageEndpoint = "http://localhost:8080/images"
	DefaultSizeClass     = "large"
	DefaultCacheSize     = "100MiB"
	DefaultDatabasePath  = "stereocards.db"
	DefaultAddr          = ":8888"
)

// Config holds the settings shared by every command.
type Config struct {
	ImageEndpoint   string
	SizeClass       string
	CacheLimitBytes int64
	DatabasePath    string
	Addr            string
	LogLevel        slog.Level
}

// Load reads STEREOCARDS_* variables and LOG_LEVEL, falling back to defaults.
func Load() (Config, error) {
	cacheSize := getenv("STEREOCARDS_CACHE_SIZE", DefaultCacheSize)
	limit, err := humanize.ParseBytes(cacheSize)
	if err != nil {
		return Config{}, fmt.Errorf("invalid STEREOCARDS_CACHE_SIZE %q: %w", cacheSize, err)
	}
	if limit == 0 {
		return Config{}, fmt.Errorf("STEREOCARDS_CACHE_SIZE must be greater than zero")
	}

	return Config{
		ImageEndpoint:   getenv("STEREOCARDS_IMAGE_ENDPOINT", DefaultImageEndpoint),
		SizeClass:       getenv("STEREOCARDS_IMAGE_SIZE", DefaultSizeClass),
		CacheLimitBytes: int64(limit),
		DatabasePath:    getenv("STEREOCARDS_DB", DefaultDatabasePath),
		Addr:            getenv("STEREOCARDS_ADDR", DefaultAddr),
		LogLevel:        ParseLevel(os.Getenv("LOG_LEVEL")),
	}, nil
}

// ParseLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
