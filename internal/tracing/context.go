package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for run ID
	RunIDKey ContextKey = "run_id"
	// RunNumberKey is the context key for the storage-scoped run number
	RunNumberKey ContextKey = "run_number"
	// RoleKey is the context key for the role taking the current turn
	RoleKey ContextKey = "role"
	// SequenceKey is the context key for the sequence index being produced
	SequenceKey ContextKey = "seq"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RunID     string
	RunNumber int64
	Role      string
	Sequence  int
	HasSeq    bool
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithRunNumber adds a run number to the context
func WithRunNumber(ctx context.Context, number int64) context.Context {
	return context.WithValue(ctx, RunNumberKey, number)
}

// WithRole adds the acting role to the context
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// WithSequence adds the sequence index of the message being produced
func WithSequence(ctx context.Context, seq int) context.Context {
	return context.WithValue(ctx, SequenceKey, seq)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetRunNumber retrieves the run number from the context
func GetRunNumber(ctx context.Context) int64 {
	if n, ok := ctx.Value(RunNumberKey).(int64); ok {
		return n
	}
	return 0
}

// GetRole retrieves the acting role from the context
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// GetSequence retrieves the sequence index from the context
func GetSequence(ctx context.Context) (int, bool) {
	seq, ok := ctx.Value(SequenceKey).(int)
	return seq, ok
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	seq, hasSeq := GetSequence(ctx)
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RunID:     GetRunID(ctx),
		RunNumber: GetRunNumber(ctx),
		Role:      GetRole(ctx),
		Sequence:  seq,
		HasSeq:    hasSeq,
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.RunNumber != 0 {
		ctx = WithRunNumber(ctx, tc.RunNumber)
	}
	if tc.Role != "" {
		ctx = WithRole(ctx, tc.Role)
	}
	if tc.HasSeq {
		ctx = WithSequence(ctx, tc.Sequence)
	}
	return ctx
}

// NewRunContext creates a context for a run, keeping an existing trace ID
func NewRunContext(ctx context.Context, runID string, number int64) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithRunID(ctx, runID)
	return WithRunNumber(ctx, number)
}
