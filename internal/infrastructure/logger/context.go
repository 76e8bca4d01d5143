package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	syncRunKey
)

// WithSyncRunID stores runID and a logger tagged with it in ctx. Everything
// a sync run logs, including its SQL, can then be grouped by sync_run_id.
func WithSyncRunID(ctx context.Context, log *zap.Logger, runID string) (context.Context, *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	tagged := log.With(zap.String("sync_run_id", runID))
	ctx = context.WithValue(ctx, syncRunKey, runID)
	return context.WithValue(ctx, loggerKey, tagged), tagged
}

// GetSyncRunID returns the run id set by WithSyncRunID, or ""
func GetSyncRunID(ctx context.Context) string {
	runID, _ := ctx.Value(syncRunKey).(string)
	return runID
}

// FromContext returns the logger stored in ctx, or a no-op logger. When ctx
// carries a recording span its trace_id and span_id are added.
func FromContext(ctx context.Context) *zap.Logger {
	log, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || log == nil {
		return zap.NewNop()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
