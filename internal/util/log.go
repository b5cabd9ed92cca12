package util

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process root logger at the requested level, falling
// back to info on unknown levels.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// NewFileLogger mirrors log output to stdout and the given file.
func NewFileLogger(level, path string) (zerolog.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), err
	}
	lvl, perr := zerolog.ParseLevel(strings.ToLower(level))
	if perr != nil {
		lvl = zerolog.InfoLevel
	}
	w := io.MultiWriter(os.Stdout, file)
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl), nil
}

// Component tags a child logger with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("comp", name).Logger()
}
