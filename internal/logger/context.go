package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one pipeline shard.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Shard     string    // Pipeline shard identifier
	VolumeID  int64     // Currently owned block volume id, 0 if none
	HashKey   string    // Block hash_key under processing
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given shard.
func NewLogContext(shard string) *LogContext {
	return &LogContext{
		Shard:     shard,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Shard:     lc.Shard,
		VolumeID:  lc.VolumeID,
		HashKey:   lc.HashKey,
		StartTime: lc.StartTime,
	}
}

// WithVolume returns a copy with the current volume id set.
func (lc *LogContext) WithVolume(volumeID int64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.VolumeID = volumeID
	}
	return clone
}

// WithHashKey returns a copy with the block hash_key set.
func (lc *LogContext) WithHashKey(hashKey string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.HashKey = hashKey
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
