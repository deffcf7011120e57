package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger logs text to stderr and JSON lines to logFile, tagging every
// record with component. If the file cannot be opened only stderr is used.
// The returned func closes the file.
func SetupLogger(logFile string, level slog.Level, component string) (*slog.Logger, func() error) {
	file, err := openLogFile(logFile)
	if err != nil {
		logger := slog.New(stderrHandler(os.Stderr, level)).With("component", component)
		logger.Warn("log file unavailable, logging to stderr only", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}
	return SetupLoggerWithWriters(os.Stderr, file, level).With("component", component), file.Close
}

// SetupLoggerWithWriters fans records out to a text handler on stderr and a
// JSON handler on file.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug})
	return slog.New(slogmulti.Fanout(stderrHandler(stderr, level), jsonHandler))
}

func stderrHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
