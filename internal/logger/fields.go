package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation
// and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Pipeline & Sharding
	// ========================================================================
	KeyShard     = "shard"     // Pipeline shard identifier
	KeyOperation = "operation" // Sub-operation name

	// ========================================================================
	// Block & Volume
	// ========================================================================
	KeyHashKey       = "hash_key"     // Content hash identity of a block
	KeySize          = "size"         // Logical byte length
	KeyVolumeID      = "volume_id"    // Durable index volume id
	KeyVolumeKind    = "volume_kind"  // Blocks | Index
	KeyVolumeState   = "volume_state" // Open | Closed | Disposed
	KeyRemoteName    = "remote_name"  // Remote filename assigned at registration
	KeySourceSize    = "source_size"  // Cumulative uncompressed bytes in a volume
	KeyFileSize      = "file_size"    // Current compressed on-disk size
	KeyMaxVolumeSize = "max_volume_size"
	KeyWasNew        = "was_new" // add_block result

	// ========================================================================
	// Index backend
	// ========================================================================
	KeyBackend = "backend" // badger | postgres
	KeyDSN     = "dsn"     // connection string, logged as given (not redacted)

	// ========================================================================
	// Uploader
	// ========================================================================
	KeyBucket  = "bucket"
	KeyKey     = "key"
	KeyRegion  = "region"
	KeyAttempt = "attempt"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// ----------------------------------------------------------------------------
// Field constructors for type safety
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Shard returns a slog.Attr for the pipeline shard identifier
func Shard(id string) slog.Attr {
	return slog.String(KeyShard, id)
}

// Operation returns a slog.Attr for a sub-operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// HashKey returns a slog.Attr for a block's content hash
func HashKey(h string) slog.Attr {
	return slog.String(KeyHashKey, h)
}

// Size returns a slog.Attr for a byte length
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// VolumeID returns a slog.Attr for a durable volume id
func VolumeID(id int64) slog.Attr {
	return slog.Int64(KeyVolumeID, id)
}

// VolumeKind returns a slog.Attr for the volume kind (Blocks/Index)
func VolumeKind(kind string) slog.Attr {
	return slog.String(KeyVolumeKind, kind)
}

// VolumeState returns a slog.Attr for the volume state machine position
func VolumeState(state string) slog.Attr {
	return slog.String(KeyVolumeState, state)
}

// RemoteName returns a slog.Attr for the generated remote filename
func RemoteName(name string) slog.Attr {
	return slog.String(KeyRemoteName, name)
}

// SourceSize returns a slog.Attr for cumulative uncompressed bytes
func SourceSize(n uint64) slog.Attr {
	return slog.Uint64(KeySourceSize, n)
}

// FileSize returns a slog.Attr for the current compressed size
func FileSize(n uint64) slog.Attr {
	return slog.Uint64(KeyFileSize, n)
}

// MaxVolumeSize returns a slog.Attr for the planner's threshold
func MaxVolumeSize(n uint64) slog.Attr {
	return slog.Uint64(KeyMaxVolumeSize, n)
}

// WasNew returns a slog.Attr for an add_block dedup result
func WasNew(wasNew bool) slog.Attr {
	return slog.Bool(KeyWasNew, wasNew)
}

// Backend returns a slog.Attr for the index backend name
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// DSN returns a slog.Attr for a connection string
func DSN(dsn string) slog.Attr {
	return slog.String(KeyDSN, dsn)
}

// Bucket returns a slog.Attr for a cloud bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key in remote storage
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for a cloud region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
