package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is blockpack's coarse severity scale, translated to slog.Level by
// toSlogLevel whenever the handler is (re)built.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel maps Level onto the underlying slog scale.
func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config selects the logger's verbosity, framing, and sink for one process.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

// Process-wide logger state. currentLevel is read on every log call's
// fast-path check, so it's a lock-free atomic, as is currentFormat; output,
// useColor, and the built handler/slog.Logger change rarely (only on
// Init/SetLevel/SetFormat) and are guarded by mu instead.
var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // stores "text" or "json"

	mu       sync.RWMutex
	handler  slog.Handler
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	useColor bool       = true
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")

	if f, ok := output.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}
	reconfigure()
}

// reconfigure rebuilds the slog handler from the current level/format/output.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(Level(currentLevel.Load())))
	opts := &slog.HandlerOptions{Level: levelVar}

	format, _ := currentFormat.Load().(string)
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(handler)
}

// Init configures the package-level logger. Output selects the sink
// ("stdout", "stderr", or a file path to append to); Level and Format are
// forwarded to SetLevel/SetFormat. Any field left zero keeps its current
// value, so a caller may call Init again later to change just one setting.
func Init(cfg Config) error {
	if cfg.Output != "" {
		if err := setOutput(cfg.Output); err != nil {
			return err
		}
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	return nil
}

// setOutput resolves dst to a writer and color policy, then swaps it in.
func setOutput(dst string) error {
	var newOutput io.Writer
	var newUseColor bool

	switch strings.ToLower(dst) {
	case "stdout", "":
		newOutput = os.Stdout
		newUseColor = isTerminal(os.Stdout.Fd())
	case "stderr":
		newOutput = os.Stderr
		newUseColor = isTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", dst, err)
		}
		newOutput = f
		newUseColor = false // files never render ANSI color
	}

	mu.Lock()
	output = newOutput
	useColor = newUseColor
	mu.Unlock()
	reconfigure()
	return nil
}

// InitWithWriter points the logger at an arbitrary io.Writer, bypassing the
// "stdout"/"stderr"/file-path resolution Init does. Used by tests that want
// to capture output without touching the filesystem.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
}

// SetLevel sets the minimum level that will be emitted. An unrecognized
// value is ignored rather than erroring, since the caller is almost always
// forwarding an already-validated config field.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	default:
		return
	}
	reconfigure()
}

// SetFormat sets the output framing: "text" (ColorTextHandler) or "json"
// (slog.JSONHandler). An unrecognized value is ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// enabled reports whether lvl would actually be emitted, letting callers
// skip building args for a level that's about to be filtered anyway.
func enabled(lvl Level) bool {
	return lvl >= Level(currentLevel.Load())
}

// Debug logs at debug level: Debug("message", "key1", value1, ...).
func Debug(msg string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	getLogger().Debug(msg, args...)
}

// Info logs at info level: Info("message", "key1", value1, ...).
func Info(msg string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	getLogger().Info(msg, args...)
}

// Warn logs at warn level: Warn("message", "key1", value1, ...).
func Warn(msg string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	getLogger().Warn(msg, args...)
}

// Error logs at error level. Errors are never filtered by level.
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// DebugCtx logs at debug level, prepending any fields bound to ctx via
// WithContext (shard, volume id, hash key, trace/span id).
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	getLogger().Debug(msg, appendContextFields(ctx, args)...)
}

// InfoCtx logs at info level with ctx-bound fields prepended.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	getLogger().Info(msg, appendContextFields(ctx, args)...)
}

// WarnCtx logs at warn level with ctx-bound fields prepended.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	getLogger().Warn(msg, appendContextFields(ctx, args)...)
}

// ErrorCtx logs at error level with ctx-bound fields prepended.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends ctx's LogContext fields (when present and
// non-zero) ahead of args, so they read first in the rendered line.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 10+len(args))
	appendIfSet := func(key, val string) {
		if val != "" {
			fields = append(fields, key, val)
		}
	}

	appendIfSet(KeyTraceID, lc.TraceID)
	appendIfSet(KeySpanID, lc.SpanID)
	appendIfSet(KeyShard, lc.Shard)
	if lc.VolumeID != 0 {
		fields = append(fields, KeyVolumeID, lc.VolumeID)
	}
	appendIfSet(KeyHashKey, lc.HashKey)

	return append(fields, args...)
}

// With returns a slog.Logger with args bound, for call sites that want to
// reuse a prefix of fields across several log lines instead of repeating
// them on every call.
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns the time elapsed since start, in fractional milliseconds,
// matching the precision LogContext.DurationMs reports.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// printf is the shared body behind the Xf family below: format the message,
// then hand it to the level's normal (non-formatted) entry point so level
// filtering and ctx handling stay in one place.
func printf(level Level, emit func(string, ...any), format string, v ...any) {
	if !enabled(level) {
		return
	}
	emit(fmt.Sprintf(format, v...))
}

// Debugf logs at debug level with printf-style formatting, for call sites
// migrating from an unstructured logger that haven't been converted to
// structured fields yet.
func Debugf(format string, v ...any) { printf(LevelDebug, func(m string, _ ...any) { getLogger().Debug(m) }, format, v...) }

// Infof logs at info level with printf-style formatting.
func Infof(format string, v ...any) { printf(LevelInfo, func(m string, _ ...any) { getLogger().Info(m) }, format, v...) }

// Warnf logs at warn level with printf-style formatting.
func Warnf(format string, v ...any) { printf(LevelWarn, func(m string, _ ...any) { getLogger().Warn(m) }, format, v...) }

// Errorf logs at error level with printf-style formatting. Errors are never
// filtered by level.
func Errorf(format string, v ...any) {
	getLogger().Error(fmt.Sprintf(format, v...))
}
