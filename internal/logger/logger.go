// Package logger provides structured logging using zerolog.
// The TUI owns the terminal, so output defaults to a log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging surface handed to components
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) Logger
}

// Config holds logging settings
type Config struct {
	Level      string `yaml:"level"`
	Debug      bool   `yaml:"debug"`
	Output     string `yaml:"output"` // file, stderr, stdout
	File       string `yaml:"file,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty"`
}

// DefaultConfig logs at info level to the default log file
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: "file",
	}
}

type zlog struct {
	zl zerolog.Logger
}

func (l *zlog) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *zlog) Info() *zerolog.Event  { return l.zl.Info() }
func (l *zlog) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *zlog) Error() *zerolog.Event { return l.zl.Error() }
func (l *zlog) With() zerolog.Context { return l.zl.With() }

func (l *zlog) WithComponent(component string) Logger {
	return &zlog{zl: l.zl.With().Str("component", component).Logger()}
}

// New wraps an existing zerolog logger
func New(zl zerolog.Logger) Logger {
	return &zlog{zl: zl}
}

var (
	mu     sync.Mutex
	global Logger = New(zerolog.New(io.Discard))
	closer io.Closer
)

// Init configures the process logger. The returned closer releases the log file.
func Init(cfg Config) (io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var (
		out io.Writer
		c   io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	case "", "file":
		path := cfg.File
		if path == "" {
			var err error
			path, err = DefaultPath()
			if err != nil {
				return nil, err
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		out, c = f, f
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
	}
	global = New(zerolog.New(out).Level(level).With().Timestamp().Logger())
	closer = c

	return c, nil
}

// DefaultPath returns $XDG_STATE_HOME/lazywh/lazywh.log
func DefaultPath() (string, error) {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "lazywh", "lazywh.log"), nil
}

// Get returns the process logger
func Get() Logger {
	mu.Lock()
	defer mu.Unlock()
	return global
}

// WithComponent returns the process logger tagged with a component name
func WithComponent(component string) Logger {
	return Get().WithComponent(component)
}

// NewTestLogger returns a logger that discards everything
func NewTestLogger() Logger {
	return New(zerolog.New(io.Discard).Level(zerolog.Disabled))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
