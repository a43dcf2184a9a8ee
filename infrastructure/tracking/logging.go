// Package tracking renders domain tracking events as structured logs and
// Prometheus metrics.
package tracking

import (
	"context"
	"log/slog"

	"github.com/helixml/codestore/domain/tracking"
)

// LoggingObserver renders events through slog. Failures and skipped records
// log at warn, everything else at debug.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver creates a new LoggingObserver.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

// OnInvocation logs one backend attempt.
func (o *LoggingObserver) OnInvocation(ctx context.Context, e tracking.Invocation) {
	attrs := []slog.Attr{
		slog.String("backend", e.Backend),
		slog.Int("attempt", e.Attempt),
		slog.Int("items", e.Items),
		slog.String("outcome", string(e.Outcome)),
		slog.Duration("duration", e.Duration),
	}
	if e.Outcome == tracking.OutcomeSuccess {
		o.logger.LogAttrs(ctx, slog.LevelDebug, "backend invocation", attrs...)
		return
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	o.logger.LogAttrs(ctx, slog.LevelWarn, "backend invocation failed", attrs...)
}

// OnRotation logs a credential switch.
func (o *LoggingObserver) OnRotation(ctx context.Context, e tracking.Rotation) {
	o.logger.InfoContext(ctx, "rotating credential after rate limit",
		slog.String("backend", e.Backend),
		slog.Int("attempt", e.Attempt),
		slog.Int("pool_size", e.PoolSize),
	)
}

// OnGeneration logs a request summary.
func (o *LoggingObserver) OnGeneration(ctx context.Context, e tracking.Generation) {
	level := slog.LevelInfo
	if e.Failed > 0 {
		level = slog.LevelWarn
	}
	o.logger.LogAttrs(ctx, level, "embeddings generated",
		slog.String("request_id", e.RequestID),
		slog.String("strategy", e.Strategy),
		slog.Int("items", e.Items),
		slog.Int("succeeded", e.Succeeded),
		slog.Int("failed", e.Failed),
		slog.String("primary_backend", e.PrimaryBackend),
		slog.Bool("fallback_used", e.FallbackUsed),
		slog.Duration("duration", e.Duration),
	)
}

// OnStorageAttempt logs failed storage attempts.
func (o *LoggingObserver) OnStorageAttempt(ctx context.Context, e tracking.StorageAttempt) {
	if e.Err == nil {
		return
	}
	o.logger.WarnContext(ctx, "storage attempt failed",
		slog.String("operation", e.Operation),
		slog.Int("attempt", e.Attempt),
		slog.String("error", e.Err.Error()),
	)
}

// OnRecordSkipped logs a record the store rejected.
func (o *LoggingObserver) OnRecordSkipped(ctx context.Context, e tracking.RecordSkipped) {
	attrs := []any{slog.String("id", e.ID)}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	o.logger.WarnContext(ctx, "record skipped", attrs...)
}

// OnRetrieval logs a retrieval summary.
func (o *LoggingObserver) OnRetrieval(ctx context.Context, e tracking.Retrieval) {
	o.logger.DebugContext(ctx, "retrieval completed",
		slog.Int("candidates", e.Candidates),
		slog.Int("filtered", e.Filtered),
		slog.Int("expanded", e.Expanded),
		slog.Int("returned", e.Returned),
		slog.Duration("duration", e.Duration),
	)
}

var _ tracking.Observer = (*LoggingObserver)(nil)
