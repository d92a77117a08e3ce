package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/lankacart-backend/pkg/logger"
)

// gormLogger routes GORM's trace hook into the service logger. Only slow
// statements and failures are logged; not-found lookups are expected.
type gormLogger struct {
	logg *logger.Logger
	slow time.Duration
}

func newGormLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	return &gormLogger{logg: logg, slow: slow}
}

func (g *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return g }

func (g *gormLogger) Info(context.Context, string, ...any) {}

func (g *gormLogger) Warn(context.Context, string, ...any) {}

func (g *gormLogger) Error(context.Context, string, ...any) {}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.logg == nil {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slow > 0 && elapsed >= g.slow
	if !failed && !slow {
		return
	}

	sql, rows := fc()
	logCtx := g.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	if failed {
		g.logg.Warn(g.logg.WithField(logCtx, "error", err.Error()), "db.query_failed")
		return
	}
	g.logg.Warn(logCtx, "db.slow_query")
}
