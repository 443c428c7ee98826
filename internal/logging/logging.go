// Package logging sets up the process-wide slog logger for gestured.
//
// Packages never import this one: they receive a *slog.Logger built with
// WithComponent. The level can be changed while running, which the daemon
// uses to toggle debug output on SIGUSR1.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format is the output encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// DefaultRedact lists attribute key fragments whose values are never
// written.
var DefaultRedact = []string{"password", "secret", "token", "credential", "cookie", "auth"}

// Config holds the logging configuration.
type Config struct {
	Level  Level
	Format Format

	// Output is "stdout", "stderr", "file" or "both" (stderr and file).
	Output string

	// FilePath, MaxSize (megabytes) and MaxBackups configure file output.
	FilePath   string
	MaxSize    int64
	MaxBackups int

	AddSource bool

	// Component is attached to every record of the root logger.
	Component string

	// Redact overrides DefaultRedact. Matching is case-insensitive on
	// substrings of the attribute key.
	Redact []string

	// Writer, if set, replaces Output.
	Writer io.Writer
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		MaxSize:    10,
		MaxBackups: 3,
		Component:  "gestured",
	}
}

// Logger is the root logger plus the resources behind it.
type Logger struct {
	*slog.Logger

	level   *slog.LevelVar
	base    Level
	rotator *FileRotator
	mu      sync.Mutex
}

// New creates a Logger. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{level: new(slog.LevelVar), base: cfg.Level}
	l.level.Set(cfg.Level)

	w, err := l.openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}

	redact := cfg.Redact
	if redact == nil {
		redact = DefaultRedact
	}
	opts := &slog.HandlerOptions{
		Level:       l.level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redactor(redact),
	}

	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	l.Logger = slog.New(h)
	return l, nil
}

// SetDefault installs l as the slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

func (l *Logger) openOutput(cfg *Config) (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}

	out := strings.ToLower(cfg.Output)
	switch out {
	case "stdout":
		return os.Stdout, nil
	case "file", "both":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, err
		}
		l.rotator = r
		if out == "both" {
			return io.MultiWriter(os.Stderr, r), nil
		}
		return r, nil
	default:
		return os.Stderr, nil
	}
}

func redactor(keys []string) func([]string, slog.Attr) slog.Attr {
	lowered := make([]string, len(keys))
	for i, k := range keys {
		lowered[i] = strings.ToLower(k)
	}
	return func(_ []string, a slog.Attr) slog.Attr {
		key := strings.ToLower(a.Key)
		if slices.ContainsFunc(lowered, func(s string) bool { return strings.Contains(key, s) }) {
			a.Value = slog.StringValue("[REDACTED]")
		}
		return a
	}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *slog.Logger {
	return l.Logger.With(slog.String("component", name))
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return l.level.Level()
}

// SetLevel changes the minimum level of this logger and every logger
// derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// ToggleDebug switches between debug and the configured level and returns
// the new level.
func (l *Logger) ToggleDebug() Level {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := LevelDebug
	if l.level.Level() == LevelDebug {
		next = l.base
	}
	l.level.Set(next)
	return next
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// ParseLevel parses debug, info, warn (or warning) and error.
func ParseLevel(s string) (Level, error) {
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var level Level
	if s == "" || strings.ContainsAny(s, "+-") {
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
	return level, nil
}

// ParseFormat parses "text" (or empty) and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %q", s)
	}
}
