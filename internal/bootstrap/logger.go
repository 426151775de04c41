package bootstrap

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Gidwell/jiro/internal/config"
)

// SetupLogger installs the default logger. Records always go to stderr and
// are mirrored into a rotated file when cfg.File is set. The returned closer
// releases the file.
func SetupLogger(cfg config.LoggingConfig, debugMode bool) io.Closer {
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stderr, file)
		closer = file
	}

	slog.SetDefault(
		slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: debugMode,
		})),
	)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
