package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog behind a small fielded API so callers never import
// zerolog directly.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr, or a file path
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var out io.Writer
	switch cfg.Output {
	case "stdout", "":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f(ev)
	}
	ev.Msg(msg)
}

// Field attaches one structured key to a log event.
type Field func(*zerolog.Event)

func String(key, value string) Field {
	return func(ev *zerolog.Event) { ev.Str(key, value) }
}

func Strings(key string, values []string) Field {
	return func(ev *zerolog.Event) { ev.Strs(key, values) }
}

func Int(key string, value int) Field {
	return func(ev *zerolog.Event) { ev.Int(key, value) }
}

func Int64(key string, value int64) Field {
	return func(ev *zerolog.Event) { ev.Int64(key, value) }
}

func Float64(key string, value float64) Field {
	return func(ev *zerolog.Event) { ev.Float64(key, value) }
}

func Bool(key string, value bool) Field {
	return func(ev *zerolog.Event) { ev.Bool(key, value) }
}

func Duration(key string, value time.Duration) Field {
	return func(ev *zerolog.Event) { ev.Dur(key, value) }
}

func Any(key string, value interface{}) Field {
	return func(ev *zerolog.Event) { ev.Interface(key, value) }
}

func Error(err error) Field {
	return func(ev *zerolog.Event) { ev.Err(err) }
}
