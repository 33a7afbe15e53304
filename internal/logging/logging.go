package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where logs go and what gets through.
type Config struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string
	// FilePath is the log file location.
	FilePath string
	// MaxSizeMB caps the active file before rotation.
	MaxSizeMB int
	// MaxFiles caps how many rotated files stay on disk.
	MaxFiles int
	// WriteToStderr mirrors every record to stderr.
	WriteToStderr bool
}

// DefaultConfig logs at info to the default server log, keeping five
// rotated files of up to 10 MB each.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON slog logger backed by a rotating file. The
// returned cleanup flushes and closes the file; call it on shutdown.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = writer
	if cfg.WriteToStderr {
		out = io.MultiWriter(writer, os.Stderr)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}))
	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// LevelFromString exposes level parsing for the viewer's filters.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
