package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/config"
)

// New constructs a zerolog logger based on config settings.
// Defaults to JSON, info level, stdout when fields are empty.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	output, closer, err := openOutput(cfg)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = false

	base := newLogger(output, ParseLevel(cfg.Level), app)
	return &base, closer, nil
}

func newLogger(w io.Writer, level zerolog.Level, app config.AppConfig) zerolog.Logger {
	ctx := zerolog.New(w).Level(level).With().Timestamp().Str("app", app.Name)
	if app.Environment != "" {
		ctx = ctx.Str("env", app.Environment)
	}
	if app.Version != "" {
		ctx = ctx.Str("version", app.Version)
	}
	return ctx.Logger()
}

// ParseLevel maps a configured level name onto zerolog. Unknown or empty
// names fall back to info.
func ParseLevel(name string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging.output=file requires logging.file_path")
		}
		if dir := filepath.Dir(cfg.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return file, file, nil
	}
	return nil, nil, fmt.Errorf("unknown logging.output %q", cfg.Output)
}

// Component derives the child logger a package logs through. A nil parent
// yields a disabled logger.
func Component(parent *zerolog.Logger, name string) *zerolog.Logger {
	if parent == nil {
		nop := zerolog.Nop()
		return &nop
	}
	l := parent.With().Str("component", name).Logger()
	return &l
}
