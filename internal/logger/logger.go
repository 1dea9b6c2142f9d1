package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Environment variable to configure log file path.
const envLogPath = "MEDICARE_AGENT_LOG"

var (
	std           *slog.Logger
	logFile       *os.File
	isInitialized bool
)

// InitFromEnv initializes the logger using MEDICARE_AGENT_LOG or stderr.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		std = slog.New(slog.NewTextHandler(os.Stderr, nil))
		isInitialized = true
		return nil
	}
	return Init(path)
}

// Init initializes the logger to write to the provided file path as well as
// stderr. It creates parent directories if needed and opens the file in
// append mode.
func Init(path string) error {
	if isInitialized {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std = slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, f), nil))
	isInitialized = true
	return nil
}

// Close closes the underlying log file, if open.
func Close() error {
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Get returns the configured logger, initializing from the environment if
// needed.
func Get() *slog.Logger {
	if std == nil {
		_ = InitFromEnv()
	}
	return std
}

// Info logs informational messages.
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Warn logs warnings.
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Error logs errors.
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Debug logs debug messages.
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
