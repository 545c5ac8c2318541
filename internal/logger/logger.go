// Package logger configures slog: colored tint output for development,
// JSON in production.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const formatJSON = "json"

// Logger is the server-wide slog.Logger.
type Logger struct {
	*slog.Logger
}

type Config struct {
	Writer io.Writer
	// Format is "json" or "pretty" (tint).
	Format      string
	Environment string
	Level       slog.Level
	AddSource   bool
	NoColor     bool
}

// New builds a logger. An empty Format picks json in production and pretty
// elsewhere; a nil Writer logs to stdout.
func New(cfg Config) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	return &Logger{Logger: slog.New(newHandler(w, cfg))}
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	format := cfg.Format
	if format == "" && cfg.Environment == "production" {
		format = formatJSON
	}

	if format == formatJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       cfg.Level,
			AddSource:   cfg.AddSource,
			ReplaceAttr: shortenSource,
		})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		TimeFormat:  time.TimeOnly,
		NoColor:     cfg.NoColor,
		ReplaceAttr: shortenSource,
	})
}

// shortenSource keeps only the file name of source locations.
func shortenSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		if source, ok := a.Value.Any().(*slog.Source); ok {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}

// ParseLevel maps a configured level name to a slog.Level, falling back to
// info. "warning" is accepted alongside slog's own names.
func ParseLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Component returns a logger tagging every record with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", name))}
}

// Fatal logs at error level and exits with status 1.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
