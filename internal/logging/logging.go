// Package logging builds the process logger: JSON lines to stdout and to
// a size-rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"pairprice/internal/config"
)

const FileName = "app.log"

// New returns a logger writing to stdout and dir/app.log. If dir cannot be
// created it logs to stderr only. The returned closer flushes the file.
func New(cfg config.Log) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	dir := cfg.Directory
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, file), opts)), file
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
