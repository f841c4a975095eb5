package logger

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spacedesk/spacedesk/domain"
)

// Logger is the structured logging interface used across the service
type Logger interface {
	Info(ctx context.Context, message string, fields map[string]interface{})
	Error(ctx context.Context, message string, err error, fields map[string]interface{})
	Warn(ctx context.Context, message string, fields map[string]interface{})
	Debug(ctx context.Context, message string, fields map[string]interface{})
	WithFields(fields map[string]interface{}) Logger
}

// structuredLogger implements Logger on top of logrus
type structuredLogger struct {
	logger *logrus.Logger
	fields map[string]interface{}
}

// Config configures the structured logger
type Config struct {
	Level       string
	Format      string
	ServiceName string
}

// correlationIDKey is the context key the correlation middleware writes under
const correlationIDKey = "correlation_id"

// New creates a structured logger writing JSON or text to stdout
func New(config Config) Logger {
	logrusLogger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrusLogger.SetLevel(level)

	if config.Format == "json" {
		logrusLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logrusLogger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		})
	}

	logrusLogger.SetOutput(os.Stdout)

	return &structuredLogger{
		logger: logrusLogger,
		fields: map[string]interface{}{
			"service": config.ServiceName,
		},
	}
}

func (l *structuredLogger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.entry(ctx, nil, fields).Info(message)
}

func (l *structuredLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	l.entry(ctx, err, fields).Error(message)
}

func (l *structuredLogger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.entry(ctx, nil, fields).Warn(message)
}

func (l *structuredLogger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.entry(ctx, nil, fields).Debug(message)
}

// WithFields returns a logger that always carries the additional fields
func (l *structuredLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &structuredLogger{logger: l.logger, fields: merged}
}

func (l *structuredLogger) entry(ctx context.Context, err error, fields map[string]interface{}) *logrus.Entry {
	logrusFields := logrus.Fields{}
	for k, v := range l.fields {
		logrusFields[k] = v
	}
	for k, v := range fields {
		logrusFields[k] = v
	}
	if cid, ok := ctx.Value(correlationIDKey).(string); ok && cid != "" {
		logrusFields["correlation_id"] = cid
	}
	if err != nil {
		logrusFields["error"] = err.Error()
	}
	return l.logger.WithFields(logrusFields)
}

// noopLogger discards everything; used in tests and as a fallback
type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, message string, fields map[string]interface{})             {}
func (noopLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {}
func (noopLogger) Warn(ctx context.Context, message string, fields map[string]interface{})             {}
func (noopLogger) Debug(ctx context.Context, message string, fields map[string]interface{})            {}
func (n noopLogger) WithFields(fields map[string]interface{}) Logger                                   { return n }

// NewNoop returns a logger that discards all output
func NewNoop() Logger {
	return noopLogger{}
}

// LogAllocationAction records one committed allocation operation
func LogAllocationAction(ctx context.Context, log Logger, action string, event *domain.AllocationEvent, performedBy string) {
	log.Info(ctx, "allocation "+action+" committed", map[string]interface{}{
		"event_type":   "allocation",
		"action":       action,
		"event_id":     event.ID,
		"from_entity":  event.FromEntityID,
		"to_entity":    event.ToEntityID,
		"period":       event.Period.Name,
		"hour_amount":  event.AfterState.HourAmount,
		"performed_by": performedBy,
	})
}

// LogSweepResult records the outcome of one expiration sweep
func LogSweepResult(ctx context.Context, log Logger, expired int, skipped int, took time.Duration) {
	log.Info(ctx, "expiration sweep finished", map[string]interface{}{
		"event_type": "sweep",
		"expired":    expired,
		"skipped":    skipped,
		"took_ms":    took.Milliseconds(),
	})
}
