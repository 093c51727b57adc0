// Package logging wraps zap with the conventions shared by the broker:
// JSON output, lumberjack rotation for on-disk logs, a process-wide fallback
// logger, and trace identifiers propagated through context and HTTP headers.
package logging

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"rpsls/broker/internal/config"
)

// TraceIDHeader is the canonical HTTP header for propagating trace IDs between services.
const TraceIDHeader = "X-Trace-ID"

// TraceIDField is the canonical structured logging field for trace identifiers.
const TraceIDField = "trace_id"

type contextKey string

var (
	loggerContextKey = contextKey("rpsls-logger")
	traceContextKey  = contextKey("rpsls-trace-id")

	globalMu     sync.RWMutex
	globalLogger = newNopLogger()
)

// Field is a structured log attribute. It aliases zap's field type so call
// sites stay free of a direct zap import.
type Field = zapcore.Field

// String builds a string-valued field.
func String(key, value string) Field { return zap.String(key, value) }

// Strings builds a field holding a string slice.
func Strings(key string, values []string) Field { return zap.Strings(key, values) }

// Int builds an int-valued field.
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 builds an int64-valued field.
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Bool builds a bool-valued field.
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Error builds the conventional "error" field.
func Error(err error) Field { return zap.Error(err) }

// Logger emits structured JSON records.
type Logger struct {
	zl *zap.Logger
}

func parseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, &unknownLevelError{raw: raw}
	}
}

type unknownLevelError struct{ raw string }

func (e *unknownLevelError) Error() string { return "unknown log level " + e.raw }

// New constructs a JSON logger writing to stdout, with on-disk rotation via
// lumberjack when a path is configured. The result also becomes the global
// fallback logger.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if path := strings.TrimSpace(cfg.Path); path != "" {
		//1.- Rotate on-disk logs so long-lived matches cannot fill the volume.
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(sinks...),
		zap.NewAtomicLevelAt(level),
	)
	logger := &Logger{zl: zap.New(core).With(zap.String("service", "rpsls-broker"))}
	ReplaceGlobals(logger)
	return logger, nil
}

// NewTestLogger returns a logger that discards output, suitable for tests.
func NewTestLogger() *Logger {
	return newNopLogger()
}

func newNopLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// ReplaceGlobals swaps the fallback logger used when no context logger is present.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the current global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With derives a logger carrying the supplied fields on every record.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil || l.zl == nil {
		return L().With(fields...)
	}
	return &Logger{zl: l.zl.With(fields...)}
}

// Sync flushes buffered records.
func (l *Logger) Sync() error {
	if l == nil || l.zl == nil {
		return nil
	}
	return l.zl.Sync()
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields ...Field) { l.logf(zapcore.DebugLevel, message, fields) }

// Info logs at info level.
func (l *Logger) Info(message string, fields ...Field) { l.logf(zapcore.InfoLevel, message, fields) }

// Warn logs at warn level.
func (l *Logger) Warn(message string, fields ...Field) { l.logf(zapcore.WarnLevel, message, fields) }

// Error logs at error level.
func (l *Logger) Error(message string, fields ...Field) { l.logf(zapcore.ErrorLevel, message, fields) }

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(message string, fields ...Field) { l.logf(zapcore.FatalLevel, message, fields) }

func (l *Logger) logf(level zapcore.Level, message string, fields []Field) {
	if l == nil || l.zl == nil {
		L().logf(level, message, fields)
		return
	}
	if ce := l.zl.Check(level, message); ce != nil {
		ce.Write(fields...)
	}
}

// ContextWithLogger stores a logger in the provided context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext retrieves a logger from context or falls back to the global logger.
func LoggerFromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return L()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok && logger != nil {
		return logger
	}
	return L()
}

// ContextWithTraceID stores a trace identifier in context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceContextKey, traceID)
}

// TraceIDFromContext extracts a trace identifier from context.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceContextKey).(string); ok {
		return traceID
	}
	return ""
}

// GenerateTraceID creates a random trace identifier.
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTrace enriches the context with a trace ID and returns the derived logger.
func WithTrace(ctx context.Context, base *Logger, traceID string) (context.Context, *Logger, string) {
	tid := strings.TrimSpace(traceID)
	if tid == "" {
		tid = GenerateTraceID()
	}
	if base == nil {
		base = L()
	}
	derived := base.With(String(TraceIDField, tid))
	ctx = ContextWithTraceID(ctx, tid)
	ctx = ContextWithLogger(ctx, derived)
	return ctx, derived, tid
}

// HTTPTraceMiddleware ensures every request has a trace identifier propagated through context and headers.
func HTTPTraceMiddleware(base *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			incoming := strings.TrimSpace(r.Header.Get(TraceIDHeader))
			ctx, logger, traceID := WithTrace(r.Context(), base, incoming)
			r = r.WithContext(ctx)
			w.Header().Set(TraceIDHeader, traceID)
			logger.Debug("request received", String("method", r.Method), String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}
