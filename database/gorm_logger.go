package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLoggerOptions tunes the gorm logger.
type GormLoggerOptions struct {
	SlowThreshold time.Duration
	LogQueries    bool
}

type gormLogger struct {
	logger        *slog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
	logQueries    bool
}

// NewGormLogger routes gorm output to slog. Record-not-found errors are
// not logged: repositories translate them to their own sentinels.
func NewGormLogger(l *slog.Logger, opts *GormLoggerOptions) logger.Interface {
	gl := &gormLogger{logger: l, level: logger.Warn, slowThreshold: 200 * time.Millisecond}
	if opts != nil {
		if opts.SlowThreshold > 0 {
			gl.slowThreshold = opts.SlowThreshold
		}
		gl.logQueries = opts.LogQueries
	}
	return gl
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info {
		g.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn {
		g.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error {
		g.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		sql, rows := fc()
		g.logger.ErrorContext(ctx, "query failed",
			slog.String("sql", sql), slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed), slog.Any("error", err))
	case g.slowThreshold > 0 && elapsed > g.slowThreshold && g.level >= logger.Warn:
		sql, rows := fc()
		g.logger.WarnContext(ctx, "slow query",
			slog.String("sql", sql), slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed), slog.Duration("threshold", g.slowThreshold))
	case g.logQueries:
		sql, rows := fc()
		g.logger.DebugContext(ctx, "query",
			slog.String("sql", sql), slog.Int64("rows", rows), slog.Duration("elapsed", elapsed))
	}
}
