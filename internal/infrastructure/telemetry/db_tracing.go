package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/storepulse/backend/internal/infrastructure/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQuery = 200 * time.Millisecond

// DBTracingConfig controls the otelgorm spans on the analytics database
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // keep bound query variables in spans
	SlowQueryThresh time.Duration // spans over this get db.slow_query=true
	DBSystem        string        // defaults to "postgresql"
}

// DBTracingPlugin installs otelgorm and annotates each statement span with
// its table, affected rows, the sync run that issued it and slowness.
// Slow statements are logged by the SQL logger, not here.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin with the given configuration.
func NewDBTracingPlugin(cfg DBTracingConfig, log *zap.Logger) *DBTracingPlugin {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = defaultSlowQuery
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{
		config: cfg,
		logger: log,
	}
}

// Register installs otelgorm and the timing callbacks on db. A disabled
// plugin is a no-op.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(p.config.DBSystem),
	}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []struct {
		before func() error
		after  func() error
	}{
		{
			func() error { return cb.Create().Before("gorm:create").Register("storepulse:before_create", p.before) },
			func() error { return cb.Create().After("gorm:create").Register("storepulse:after_create", p.after) },
		},
		{
			func() error { return cb.Query().Before("gorm:query").Register("storepulse:before_query", p.before) },
			func() error { return cb.Query().After("gorm:query").Register("storepulse:after_query", p.after) },
		},
		{
			func() error { return cb.Update().Before("gorm:update").Register("storepulse:before_update", p.before) },
			func() error { return cb.Update().After("gorm:update").Register("storepulse:after_update", p.after) },
		},
		{
			func() error { return cb.Delete().Before("gorm:delete").Register("storepulse:before_delete", p.before) },
			func() error { return cb.Delete().After("gorm:delete").Register("storepulse:after_delete", p.after) },
		},
		{
			func() error { return cb.Raw().Before("gorm:raw").Register("storepulse:before_raw", p.before) },
			func() error { return cb.Raw().After("gorm:raw").Register("storepulse:after_raw", p.after) },
		},
	}
	for _, s := range steps {
		if err := s.before(); err != nil {
			return err
		}
		if err := s.after(); err != nil {
			return err
		}
	}
	return nil
}

func (p *DBTracingPlugin) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if table := db.Statement.Table; table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	if runID := logger.GetSyncRunID(ctx); runID != "" {
		attrs = append(attrs, attribute.String(SpanAttrRunID, runID))
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
			attrs = append(attrs,
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
	span.SetAttributes(attrs...)

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}
}

type queryStartKey struct{}
