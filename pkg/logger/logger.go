package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the structured logging interface used throughout the service.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
	With(args ...interface{}) Logger
	WithContext(ctx context.Context) Logger
}

// logger implements Logger on top of log/slog with JSON output.
type logger struct {
	slog *slog.Logger
	ctx  context.Context
}

// New creates a new logger at the given level ("debug", "info", "warn", "error").
func New(level string) Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(time.Now().UTC().Format(time.RFC3339)),
				}
			}
			return a
		},
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return &logger{slog: slog.New(handler), ctx: context.Background()}
}

func (l *logger) Debug(msg string, args ...interface{}) {
	l.slog.DebugContext(l.ctx, msg, l.convertArgs(args...)...)
}

func (l *logger) Info(msg string, args ...interface{}) {
	l.slog.InfoContext(l.ctx, msg, l.convertArgs(args...)...)
}

func (l *logger) Warn(msg string, args ...interface{}) {
	l.slog.WarnContext(l.ctx, msg, l.convertArgs(args...)...)
}

func (l *logger) Error(msg string, args ...interface{}) {
	l.slog.ErrorContext(l.ctx, msg, l.convertArgs(args...)...)
}

func (l *logger) Fatal(msg string, args ...interface{}) {
	l.slog.ErrorContext(l.ctx, msg, l.convertArgs(args...)...)
	os.Exit(1)
}

func (l *logger) With(args ...interface{}) Logger {
	return &logger{slog: l.slog.With(l.convertArgs(args...)...), ctx: l.ctx}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	return &logger{slog: l.slog, ctx: ctx}
}

func (l *logger) convertArgs(args ...interface{}) []any {
	if len(args) == 0 {
		return nil
	}
	if len(args)%2 != 0 {
		args = append(args, nil)
	}

	result := make([]any, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key := args[i]
		value := args[i+1]

		var keyStr string
		if k, ok := key.(string); ok {
			keyStr = k
		} else {
			keyStr = fmt.Sprintf("%v", key)
		}
		result = append(result, keyStr, value)
	}
	return result
}

// RequestLogger creates a logger with request-specific fields.
func RequestLogger(base Logger, requestID, method, path string) Logger {
	return base.With("request_id", requestID, "method", method, "path", path)
}

// ErrorLogger creates a logger with error-specific fields.
func ErrorLogger(base Logger, err error, operation string) Logger {
	return base.With("error", err.Error(), "operation", operation)
}

// BookingLogger creates a logger scoped to a single booking.
func BookingLogger(base Logger, bookingID, customerRef string) Logger {
	return base.With("booking_id", bookingID, "customer_ref", customerRef)
}

// PaymentLogger creates a logger scoped to a single gateway payment.
func PaymentLogger(base Logger, transactionID string, amount int64) Logger {
	return base.With("transaction_id", transactionID, "amount", amount)
}

// DatabaseLogger creates a logger with database-specific fields.
func DatabaseLogger(base Logger, operation, table string, duration time.Duration) Logger {
	return base.With("db_operation", operation, "db_table", table, "duration_ms", duration.Milliseconds())
}

// HTTPLogger creates a logger with HTTP-specific fields.
func HTTPLogger(base Logger, statusCode int, duration time.Duration, userAgent string) Logger {
	return base.With("status_code", statusCode, "duration_ms", duration.Milliseconds(), "user_agent", userAgent)
}

var defaultLogger Logger

func init() {
	defaultLogger = New("info")
}

// SetDefault sets the package-level default logger.
func SetDefault(l Logger) {
	defaultLogger = l
}

// Default returns the package-level default logger.
func Default() Logger {
	return defaultLogger
}

func Debug(msg string, args ...interface{}) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...interface{})  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...interface{})  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...interface{}) { defaultLogger.Error(msg, args...) }
func Fatal(msg string, args ...interface{}) { defaultLogger.Fatal(msg, args...) }

func With(args ...interface{}) Logger       { return defaultLogger.With(args...) }
func WithContext(ctx context.Context) Logger { return defaultLogger.WithContext(ctx) }
