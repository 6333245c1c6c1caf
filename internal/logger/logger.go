package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process logger. The console shows Level and above; the log
// file also keeps debug lines so a finished run can be diagnosed afterwards.
type Logger struct {
	logger   zerolog.Logger
	file     *os.File
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string    // trace, debug, info, warn, error
	File      string    // append-only log file path
	Console   bool      // enable console output
	Pretty    bool      // human-readable console output
	Redaction bool      // mask API keys and tokens
	Secrets   []string  // literal values always masked when Redaction is on
	Output    io.Writer // console destination, defaults to stderr
}

// New creates a logger. The console goes to stderr so stdout stays free for
// the turn stream.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	fileLevel := level
	if fileLevel > zerolog.DebugLevel {
		fileLevel = zerolog.DebugLevel
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		for _, s := range cfg.Secrets {
			redactor.AddSecret(s)
		}
	}
	guard := func(w io.Writer) io.Writer {
		if redactor == nil {
			return w
		}
		return redactor.Wrap(w)
	}

	var writers []io.Writer

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		var console io.Writer = out
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
		writers = append(writers, &minLevelWriter{next: guard(console), min: level})
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, &minLevelWriter{next: guard(file), min: fileLevel})
	}

	var writer io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	floor := level
	if file != nil {
		floor = fileLevel
	}
	logger := zerolog.New(writer).
		Level(floor).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		file:     file,
		redactor: redactor,
	}, nil
}

// minLevelWriter drops events below min. zerolog filters per logger, this
// filters per destination.
type minLevelWriter struct {
	next io.Writer
	min  zerolog.Level
}

func (w *minLevelWriter) Write(p []byte) (int, error) {
	return w.next.Write(p)
}

func (w *minLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min {
		return len(p), nil
	}
	return w.next.Write(p)
}

// Close closes the log file if one is open
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// With creates a child logger with additional context
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// ForRun returns a child logger tagged with a run's identity
func (l *Logger) ForRun(runID string, runNumber int64) zerolog.Logger {
	return l.logger.With().Str("run_id", runID).Int64("run_number", runNumber).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
	}
}
