// Package logger owns the process-wide slog loggers: the application log and
// the audit stream that records answered queries and task transitions.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig controls the rotating audit file.
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

func (c AuditConfig) rotator() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   c.Path,
		MaxSize:    positiveOr(c.MaxSizeMB, 100),
		MaxBackups: positiveOr(c.MaxBackups, 7),
		MaxAge:     positiveOr(c.MaxAgeDays, 30),
		Compress:   c.Compress,
	}
}

// Set is a built pair of loggers plus the files they write to.
type Set struct {
	App     *slog.Logger
	Audit   *slog.Logger
	level   *slog.LevelVar
	closers []io.Closer
}

// New builds a Set without touching the globals.
func New(cfg Config) (*Set, error) {
	set := &Set{level: new(slog.LevelVar)}
	set.level.Set(ParseLevel(cfg.Level))

	out, err := set.outputs(cfg.OutputPaths)
	if err != nil {
		_ = set.Close()
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: set.level, AddSource: true}
	if strings.EqualFold(cfg.Format, "text") {
		set.App = slog.New(slog.NewTextHandler(out, opts))
	} else {
		set.App = slog.New(slog.NewJSONHandler(out, opts))
	}

	set.Audit = set.App
	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			_ = set.Close()
			return nil, errors.New("audit log path cannot be empty when enabled")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o755); err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
		rotator := cfg.Audit.rotator()
		set.closers = append(set.closers, rotator)
		set.Audit = slog.New(slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return set, nil
}

func (s *Set) outputs(paths []string) (io.Writer, error) {
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		switch strings.ToLower(path) {
		case "stdout", "":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			s.closers = append(s.closers, file)
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// SetLevel changes the application log level in place.
func (s *Set) SetLevel(level string) {
	s.level.Set(ParseLevel(level))
}

// Close releases every file-backed output.
func (s *Set) Close() error {
	var err error
	for _, closer := range s.closers {
		err = errors.Join(err, closer.Close())
	}
	s.closers = nil
	return err
}

// ParseLevel maps debug, info, warn/warning and error to slog levels.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

var (
	mu      sync.RWMutex
	current *Set
	once    sync.Once
	initErr error
)

// Init installs the global loggers. Only the first call has an effect; later
// calls return the result of the first one.
func Init(cfg Config) error {
	once.Do(func() {
		set, err := New(cfg)
		if err != nil {
			initErr = err
			return
		}
		mu.Lock()
		current = set
		mu.Unlock()
	})
	return initErr
}

func global() *Set {
	mu.RLock()
	set := current
	mu.RUnlock()
	if set != nil {
		return set
	}
	if err := Init(Config{}); err != nil {
		return nil
	}
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// L returns the application logger.
func L() *slog.Logger {
	if set := global(); set != nil {
		return set.App
	}
	return slog.Default()
}

// Audit returns the audit logger, which falls back to L when auditing is off.
func Audit() *slog.Logger {
	if set := global(); set != nil {
		return set.Audit
	}
	return slog.Default()
}

// Sync closes file-backed outputs of the global loggers.
func Sync() error {
	mu.RLock()
	set := current
	mu.RUnlock()
	if set == nil {
		return nil
	}
	return set.Close()
}

// Named returns a child logger tagged with a component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// WithQuery binds a query id to base, or to L when base is nil.
func WithQuery(base *slog.Logger, queryID string) *slog.Logger {
	if base == nil {
		base = L()
	}
	return base.With(slog.String("query_id", queryID))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
