package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        200 * time.Millisecond,
		IgnoreRecordNotFound: true,
	}
}

// GormLogger writes GORM statements through the request scoped zap logger.
// Bound parameters are never logged; invoices carry client names and
// addresses.
type GormLogger struct {
	cfg GormLoggerConfig
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Trace logs failed statements at error and slow ones at warn. With the Info
// level every statement is logged at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	level, ok := l.traceLevel(elapsed, err)
	if !ok {
		return
	}
	ce := FromContext(ctx).Check(level, "gorm.query")
	if ce == nil {
		return
	}

	sql, rows := fc()
	stmt := classifyStatement(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", stmt.operation),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if stmt.table != "" {
		fields = append(fields, zap.String("table", stmt.table))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if level >= zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func (l *GormLogger) traceLevel(elapsed time.Duration, err error) (zapcore.Level, bool) {
	if l.cfg.Level <= gormlogger.Silent {
		return 0, false
	}
	if err != nil && l.cfg.Level >= gormlogger.Error {
		if !(errors.Is(err, gormlogger.ErrRecordNotFound) && l.cfg.IgnoreRecordNotFound) {
			return zapcore.ErrorLevel, true
		}
	}
	if l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn {
		return zapcore.WarnLevel, true
	}
	if l.cfg.Level >= gormlogger.Info {
		return zapcore.DebugLevel, true
	}
	return 0, false
}

// ParamsFilter strips bound values from logged statements.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

type statement struct {
	operation string
	table     string
}

// classifyStatement finds the first DML verb and the table it targets.
func classifyStatement(sql string) statement {
	tokens := strings.Fields(strings.ToUpper(sql))
	for i, token := range tokens {
		token = strings.Trim(token, "();")
		var marker string
		switch token {
		case "SELECT", "DELETE":
			marker = "FROM"
		case "INSERT":
			marker = "INTO"
		case "UPDATE":
			marker = ""
		default:
			continue
		}
		return statement{operation: token, table: tableAfter(tokens[i+1:], marker)}
	}
	return statement{operation: "UNKNOWN"}
}

func tableAfter(tokens []string, marker string) string {
	for i, token := range tokens {
		if marker != "" && token != marker {
			continue
		}
		next := i
		if marker != "" {
			next = i + 1
		}
		if next >= len(tokens) {
			return ""
		}
		return strings.ToLower(strings.Trim(tokens[next], "\"`();"))
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
