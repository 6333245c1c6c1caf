package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/triad/internal/tracing"
	"github.com/harun/triad/pkg/orchestrator"
)

const maxLineSize = 16 * 1024 * 1024

// ErrLogSealed is returned when appending after the result entry
var ErrLogSealed = errors.New("turn log already holds a result")

// LogEntry is one JSON line of a turn log
type LogEntry struct {
	RunID    string                  `json:"run_id"`
	Kind     orchestrator.EventKind  `json:"kind"`
	Message  *orchestrator.Message   `json:"message,omitempty"`
	Result   *orchestrator.RunResult `json:"result,omitempty"`
	LoggedAt time.Time               `json:"logged_at"`
}

// Log is an append-only JSONL turn log for one run
type Log struct {
	path   string
	runID  string
	logger zerolog.Logger
	mu     sync.Mutex
	sealed bool
}

// LogPath returns the turn log file of a run number
func LogPath(dir string, runNumber int64) string {
	return filepath.Join(dir, fmt.Sprintf("task_record_%d.jsonl", runNumber))
}

// OpenLog prepares a turn log. An existing file is appended to, which is how
// resumed runs continue their log.
func OpenLog(path, runID string, logger zerolog.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn log: %w", err)
	}
	file.Close()

	return &Log{
		path:   path,
		runID:  runID,
		logger: logger.With().Str("component", "turn-log").Str("path", path).Logger(),
	}, nil
}

// Path returns the log file path
func (l *Log) Path() string {
	return l.path
}

// Append writes one event as a JSON line and syncs it to disk. The result
// event seals the log.
func (l *Log) Append(ctx context.Context, ev orchestrator.Event) error {
	ctx, span := tracing.StartSpan(ctx, "transcript.append",
		attribute.String("triad.event_kind", string(ev.Kind)),
	)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return ErrLogSealed
	}

	entry := LogEntry{
		RunID:    l.runID,
		Kind:     ev.Kind,
		Message:  ev.Message,
		Result:   ev.Result,
		LoggedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return tracing.FailSpan(span, fmt.Errorf("failed to marshal log entry: %w", err))
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return tracing.FailSpan(span, fmt.Errorf("failed to open turn log: %w", err))
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return tracing.FailSpan(span, fmt.Errorf("failed to write log entry: %w", err))
	}
	if err := file.Sync(); err != nil {
		return tracing.FailSpan(span, fmt.Errorf("failed to sync turn log: %w", err))
	}

	if ev.Kind == orchestrator.EventResult {
		l.sealed = true
	}

	logger := tracing.LoggerFromContext(ctx, l.logger)
	logger.Debug().
		Str("kind", string(ev.Kind)).
		Str("source", ev.Source()).
		Msg("Event appended")
	return nil
}

// LoadLog reads every valid entry of a turn log. Unparsable lines are
// skipped with a warning.
func LoadLog(path string, logger zerolog.Logger) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open turn log: %w", err)
	}
	defer file.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.Warn().Str("path", path).Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if entry.Kind == orchestrator.EventMessage && entry.Message == nil ||
			entry.Kind == orchestrator.EventResult && entry.Result == nil {
			logger.Warn().Str("path", path).Int("line", lineNum).Msg("Invalid entry, skipping")
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turn log: %w", err)
	}
	return entries, nil
}
