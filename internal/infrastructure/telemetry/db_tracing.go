package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// DBTracingConfig controls GORM instrumentation
type DBTracingConfig struct {
	Enabled         bool
	DBName          string
	SlowQueryThresh time.Duration
	// IncludeVariables puts bound values into db.statement. Amounts and
	// patient names are sensitive, so this stays off outside development.
	IncludeVariables bool
}

// DBPlugins returns the GORM plugins for cfg: otelgorm spans plus slow query
// marking. Register them through persistence.WithPlugins.
func DBPlugins(cfg DBTracingConfig) []gorm.Plugin {
	if !cfg.Enabled {
		return nil
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	return []gorm.Plugin{
		otelgorm.NewPlugin(opts...),
		&SlowQueryPlugin{Threshold: cfg.SlowQueryThresh},
	}
}

type startKey struct{}

// SlowQueryPlugin flags statements slower than Threshold on the active span
type SlowQueryPlugin struct {
	Threshold time.Duration
}

// Name implements gorm.Plugin
func (p *SlowQueryPlugin) Name() string {
	return "ledger:slow_query"
}

// Initialize implements gorm.Plugin
func (p *SlowQueryPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("slow_query:before_create", markStart),
		cb.Create().After("gorm:create").Register("slow_query:after_create", p.check),
		cb.Query().Before("gorm:query").Register("slow_query:before_query", markStart),
		cb.Query().After("gorm:query").Register("slow_query:after_query", p.check),
		cb.Update().Before("gorm:update").Register("slow_query:before_update", markStart),
		cb.Update().After("gorm:update").Register("slow_query:after_update", p.check),
		cb.Delete().Before("gorm:delete").Register("slow_query:before_delete", markStart),
		cb.Delete().After("gorm:delete").Register("slow_query:after_delete", p.check),
		cb.Row().Before("gorm:row").Register("slow_query:before_row", markStart),
		cb.Row().After("gorm:row").Register("slow_query:after_row", p.check),
		cb.Raw().Before("gorm:raw").Register("slow_query:before_raw", markStart),
		cb.Raw().After("gorm:raw").Register("slow_query:after_raw", p.check),
	)
}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, startKey{}, time.Now())
	}
}

func (p *SlowQueryPlugin) check(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.Threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.String("db.sql.table", db.Statement.Table),
			attribute.Int64("threshold_ms", p.Threshold.Milliseconds()),
		))
	}
}
