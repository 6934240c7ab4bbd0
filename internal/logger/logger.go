// Package logger wires the global zerolog logger. The interactive terminal
// owns stdout, so logs go to a file by default.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger to write JSON to file at the given
// level. An empty file falls back to stderr. The returned closer flushes
// the log file on shutdown.
func Init(level string, file string) (func(), error) {
	closer := func() {}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return closer, fmt.Errorf("parse log level: %w", err)
	}

	var writer *os.File = os.Stderr
	if file != "" {
		if dir := filepath.Dir(file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return closer, fmt.Errorf("create logs dir: %w", err)
			}
		}
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return closer, fmt.Errorf("open log file: %w", err)
		}
		closer = func() { _ = f.Close() }
		writer = f
	}

	log.Logger = zerolog.New(writer).
		With().
		Timestamp().
		Logger().
		Level(lvl)

	return closer, nil
}
