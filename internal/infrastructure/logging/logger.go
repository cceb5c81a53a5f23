package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
)

// ServiceName is attached to every entry as "service".
const ServiceName = "graylogic-miio"

const redacted = "[redacted]"

// secretKeys are attribute keys whose values never reach the output.
var secretKeys = map[string]bool{
	"token":    true,
	"handle":   true,
	"password": true,
}

// Logger is a slog.Logger carrying service and version fields.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger

	closer io.Closer
}

// New builds a Logger writing to cfg.Output: stdout (default), stderr, or
// a size-rotated file described by cfg.File.
func New(cfg config.LoggingConfig, version string) *Logger {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return NewWithWriter(cfg, version, os.Stderr)
	case "file":
		f := rotatingFile(cfg.File)
		l := NewWithWriter(cfg, version, f)
		l.closer = f
		return l
	}
	return NewWithWriter(cfg, version, os.Stdout)
}

// rotatingFile opens nothing until the first write.
func rotatingFile(cfg config.LogFileConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// Close releases the log file, if any. Children made with With share it.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
// The CLI keeps logs on stderr this way while results go to stdout.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h).With("service", ServiceName, "version", version)
	return &Logger{Logger: l}
}

// redact blanks secret attributes, including nested group members.
func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel maps debug, info, warn/warning and error case-insensitively.
// Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child Logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// Default is the logger used before configuration loads: JSON, info, stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}
