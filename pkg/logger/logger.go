package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with agent specific context helpers
type Logger struct {
	zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr or file path
}

// New creates a new logger with the given configuration
func New(cfg Config) *Logger {
	return &Logger{Logger: zerolog.New(writer(cfg)).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Caller().
		Logger()}
}

// NewWriter creates a logger writing to w, mostly useful in tests
func NewWriter(w io.Writer, level string) *Logger {
	return &Logger{Logger: zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Default creates a default console logger
func Default() *Logger {
	return New(Config{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	})
}

func writer(cfg Config) io.Writer {
	var output io.Writer = os.Stdout

	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			output = file
		}
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}
	return output
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// WithSource adds a source field to the logger (for topic sources)
func (l *Logger) WithSource(sourceType, sourceName string) *Logger {
	return &Logger{
		Logger: l.With().
			Str("source_type", sourceType).
			Str("source_name", sourceName).
			Logger(),
	}
}

// WithTopic adds the topic title and url to the logger
func (l *Logger) WithTopic(title, url string) *Logger {
	return &Logger{
		Logger: l.With().Str("topic", title).Str("url", url).Logger(),
	}
}

// WithRun tags every entry with the workflow run id
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With().Str("run_id", runID).Logger(),
	}
}

// Logf implements the printf style backend used by go-pkgz/rest middlewares.
// A leading "[LEVEL]" prefix selects the level.
func (l *Logger) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	ev := l.Info()
	switch {
	case strings.HasPrefix(msg, "[DEBUG]"):
		ev, msg = l.Debug(), msg[len("[DEBUG]"):]
	case strings.HasPrefix(msg, "[WARN]"):
		ev, msg = l.Warn(), msg[len("[WARN]"):]
	case strings.HasPrefix(msg, "[ERROR]"):
		ev, msg = l.Error(), msg[len("[ERROR]"):]
	case strings.HasPrefix(msg, "[INFO]"):
		msg = msg[len("[INFO]"):]
	}
	ev.Msg(strings.TrimSpace(msg))
}
