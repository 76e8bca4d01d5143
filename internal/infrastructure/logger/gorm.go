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

// DefaultSlowQuery is the threshold used when NewSQLLogger gets zero
const DefaultSlowQuery = 200 * time.Millisecond

// SQLLogger sends GORM output to zap. Statements issued inside a sync run
// carry its sync_run_id so a failed phase can be matched to its queries.
type SQLLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

var _ gormlogger.Interface = (*SQLLogger)(nil)

// NewSQLLogger logs under the "sql" name. Record-not-found errors are
// expected on lookups and never logged as failures.
func NewSQLLogger(zl *zap.Logger, level gormlogger.LogLevel, slow time.Duration) *SQLLogger {
	if zl == nil {
		zl = zap.NewNop()
	}
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &SQLLogger{log: zl.Named("sql"), level: level, slow: slow}
}

// LogMode returns a copy at the given level
func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *SQLLogger) Info(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *SQLLogger) Warn(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *SQLLogger) Error(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *SQLLogger) printf(at gormlogger.LogLevel, lvl zapcore.Level, msg string, data []any) {
	if l.level < at {
		return
	}
	l.log.Log(lvl, fmt.Sprintf(msg, data...))
}

// Trace logs one executed statement: failures at error, statements slower
// than the threshold at warn, everything else at debug when level is Info.
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.log.Error("Query failed", append(statementFields(ctx, elapsed, fc), zap.Error(err))...)
	case elapsed >= l.slow && l.level >= gormlogger.Warn:
		l.log.Warn("Slow query", append(statementFields(ctx, elapsed, fc), zap.Duration("threshold", l.slow))...)
	case l.level >= gormlogger.Info:
		l.log.Debug("Query", statementFields(ctx, elapsed, fc)...)
	}
}

func statementFields(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) []zap.Field {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}
	if runID := GetSyncRunID(ctx); runID != "" {
		fields = append(fields, zap.String("sync_run_id", runID))
	}
	return fields
}

// ParseSQLLevel maps database.log_level onto GORM's levels. Unknown values
// fall back to warn, which still reports slow and failed statements.
func ParseSQLLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
