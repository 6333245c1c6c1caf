package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/triad/internal/tracing"
)

// Audit event kinds
const (
	AuditRun      = "run"
	AuditSnapshot = "snapshot"
	AuditConfig   = "config"
)

// AuditEvent is one line of the audit trail
type AuditEvent struct {
	Kind      string                 `json:"kind"`
	Time      time.Time              `json:"time"`
	Actor     string                 `json:"actor,omitempty"`
	RunNumber int64                  `json:"run_number,omitempty"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger appends lifecycle events to a JSON lines file
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
	path   string
}

var (
	auditMu   sync.Mutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the process audit logger. Events are discarded until
// InitAuditLogger succeeds.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = &AuditLogger{logger: zerolog.Nop()}
	}
	return auditInst
}

// InitAuditLogger points the audit trail at path, creating its directory
func InitAuditLogger(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	auditMu.Lock()
	prev := auditInst
	auditInst = &AuditLogger{
		logger: zerolog.New(file),
		file:   file,
		path:   path,
	}
	auditMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Path returns the audit file, empty when events are discarded
func (a *AuditLogger) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Record appends an event. Run identity missing from the event is taken from
// ctx, and the event is mirrored onto the active span.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	if event.Kind == AuditRun || event.Kind == AuditSnapshot {
		if event.Actor == "" {
			event.Actor = tracing.GetRunID(ctx)
		}
		if event.RunNumber == 0 {
			event.RunNumber = tracing.GetRunNumber(ctx)
		}
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.kind", event.Kind),
			attribute.String("audit.status", event.Status),
		))
	} else if id := tracing.GetTraceID(ctx); id != "" {
		event.TraceID = id
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("kind", event.Kind).
		Time("time", event.Time).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.Actor != "" {
		entry = entry.Str("actor", event.Actor)
	}
	if event.RunNumber != 0 {
		entry = entry.Int64("run_number", event.RunNumber)
	}
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		entry = entry.Interface("metadata", event.Metadata)
	}
	entry.Send()
}

// Close closes the audit file; later events are discarded
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.path = ""
	a.logger = zerolog.Nop()
	return err
}

// CloseAuditLogger closes the process audit logger
func CloseAuditLogger() error {
	return GetAuditLogger().Close()
}

// ReadAuditLog loads every event of an audit file
func ReadAuditLog(path string) ([]AuditEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []AuditEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("malformed audit line: %w", err)
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

// RecordRunAudit records a run lifecycle transition
func RecordRunAudit(ctx context.Context, action, runID, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Kind:     AuditRun,
		Actor:    runID,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordSnapshotAudit records a snapshot save or restore
func RecordSnapshotAudit(ctx context.Context, action, runID, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Kind:     AuditSnapshot,
		Actor:    runID,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordConfigAudit records a configuration file change
func RecordConfigAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Kind:     AuditConfig,
		Actor:    actor,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}
