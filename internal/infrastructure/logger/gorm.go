package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the threshold used when SQLLogConfig leaves it unset.
const DefaultSlowQuery = 200 * time.Millisecond

// SQLLogConfig controls what the GORM bridge writes.
type SQLLogConfig struct {
	Level     gormlogger.LogLevel
	SlowQuery time.Duration
}

// SQLLogger writes GORM's query log through zap. Every statement carries the
// request, event and trace it ran for, so a ledger claim or a catalog
// increment can be traced back to the delivery that caused it.
//
// Missing rows are never logged: repositories turn them into ErrNotFound and
// the caller decides whether that matters.
type SQLLogger struct {
	log *zap.Logger
	cfg SQLLogConfig
}

// NewSQLLogger creates a GORM logger backed by zap
func NewSQLLogger(zapLogger *zap.Logger, cfg SQLLogConfig) *SQLLogger {
	if cfg.SlowQuery <= 0 {
		cfg.SlowQuery = DefaultSlowQuery
	}
	return &SQLLogger{log: zapLogger.Named("sql"), cfg: cfg}
}

// LogMode implements gormlogger.Interface
func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cfg := l.cfg
	cfg.Level = level
	return &SQLLogger{log: l.log, cfg: cfg}
}

// Info implements gormlogger.Interface
func (l *SQLLogger) Info(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

// Warn implements gormlogger.Interface
func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

// Error implements gormlogger.Interface
func (l *SQLLogger) Error(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *SQLLogger) message(ctx context.Context, floor gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if l.cfg.Level < floor {
		return
	}
	if ce := l.log.Check(level, fmt.Sprintf(msg, data...)); ce != nil {
		ce.Write(correlation(ctx)...)
	}
}

// Trace implements gormlogger.Interface. Failed statements are errors,
// statements over the slow threshold are warnings, and everything else is
// debug output at the Info level.
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		level zapcore.Level
		msg   string
	)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.cfg.Level < gormlogger.Error {
			return
		}
		level, msg = zapcore.ErrorLevel, "statement failed"
	case err == nil && elapsed >= l.cfg.SlowQuery:
		if l.cfg.Level < gormlogger.Warn {
			return
		}
		level, msg = zapcore.WarnLevel, "slow statement"
	case err == nil:
		if l.cfg.Level < gormlogger.Info {
			return
		}
		level, msg = zapcore.DebugLevel, "statement"
	default:
		return
	}

	ce := l.log.Check(level, msg)
	if ce == nil {
		return
	}
	sql, rows := fc()
	fields := append(correlation(ctx),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if level == zapcore.WarnLevel {
		fields = append(fields, zap.Duration("threshold", l.cfg.SlowQuery))
	}
	ce.Write(fields...)
}

// correlation returns the identifiers of the work ctx belongs to
func correlation(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	for _, f := range []struct{ key, value string }{
		{"request_id", GetRequestID(ctx)},
		{"event_id", GetEventID(ctx)},
		{"idempotency_key", GetIdempotencyKey(ctx)},
		{"trace_id", GetTraceID(ctx)},
		{"span_id", GetSpanID(ctx)},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.key, f.value))
		}
	}
	return fields
}

// GormLevel maps an application log level to the GORM level that produces
// comparable output. Debug enables per-statement logging.
func GormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error", "fatal":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
