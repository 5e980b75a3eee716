// Package logs builds the process logger.
package logs

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and outputs.
type Config struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Stdout bool       `mapstructure:"stdout"`
	File   FileConfig `mapstructure:"file"`
}

// FileConfig enables a rotated log file.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// New builds a logger writing to stdout and/or a rotated file. Stdout is
// used when nothing else is configured. Outside development the format is
// always JSON. The returned closer releases the log file.
func New(cfg Config, service, env string) (*slog.Logger, io.Closer) {
	isDev := strings.EqualFold(env, "development")

	var writers []io.Writer
	if cfg.Stdout || !cfg.File.Enabled {
		writers = append(writers, os.Stdout)
	}

	var closer io.Closer = nopCloser{}
	if cfg.File.Enabled {
		path := cfg.File.Path
		if path == "" {
			path = "logs/pubapi.log"
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		writers = append(writers, lj)
		closer = lj
	}

	return newLogger(io.MultiWriter(writers...), cfg, isDev).With(
		slog.String("service", service),
		slog.String("env", env),
	), closer
}

func newLogger(w io.Writer, cfg Config, isDev bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: isDev,
	}
	if strings.EqualFold(cfg.Format, "json") || !isDev {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Default is the logger used before configuration is loaded.
func Default() *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(slog.String("service", "pubapi"))
}

// ParseLevel maps a level name to a slog level; unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
