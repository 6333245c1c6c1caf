package tracing

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// PropagateToTurn derives the context for one role turn. The trace and run
// identifiers are inherited from the run context.
func PropagateToTurn(ctx context.Context, role string, seq int) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithRole(ctx, role)
	return WithSequence(ctx, seq)
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RunID != "" {
		lc = lc.Str("run_id", tc.RunID)
	}
	if tc.RunNumber != 0 {
		lc = lc.Int64("run_number", tc.RunNumber)
	}
	if tc.Role != "" {
		lc = lc.Str("role", tc.Role)
	}
	if tc.HasSeq {
		lc = lc.Int("seq", tc.Sequence)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		lc = lc.Str("span_id", sc.SpanID().String())
	}

	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}
