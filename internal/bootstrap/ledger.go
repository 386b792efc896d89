// Package bootstrap assembles the ledger services from configuration. It is
// shared by the HTTP server and the ledgerctl CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appbilling "github.com/clinic/ledger/internal/application/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/clinic/ledger/internal/infrastructure/cache"
	"github.com/clinic/ledger/internal/infrastructure/config"
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/infrastructure/persistence"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Ledger owns the database, the idempotency store and the services built on them
type Ledger struct {
	Database    *persistence.Database
	Idempotency shared.IdempotencyStore

	Invoices    *appbilling.InvoiceService
	Payments    *appbilling.PaymentService
	Plans       *appbilling.PaymentPlanService
	Receivables *appbilling.ReceivableService
	Exports     *appbilling.ExportService
}

// ServiceConfig maps the billing section of the configuration onto the service knobs
func ServiceConfig(cfg config.BillingConfig) (appbilling.Config, error) {
	currency, err := valueobject.ParseCurrency(cfg.Currency)
	if err != nil {
		return appbilling.Config{}, fmt.Errorf("billing.currency: %w", err)
	}
	return appbilling.Config{
		Currency:        currency,
		CodePrefix:      cfg.CodePrefix,
		BatchSize:       cfg.BatchSize,
		ExportBatchSize: cfg.ExportBatchSize,
		PlanTolerance:   cfg.PlanTolerance,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}, nil
}

// Option adjusts how Open wires the services
type Option func(*appbilling.Config)

// WithMetrics makes the services record ledger counters on m
func WithMetrics(m *telemetry.LedgerMetrics) Option {
	return func(c *appbilling.Config) { c.Metrics = m }
}

// Open connects to the database and the idempotency store and wires the services
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*Ledger, error) {
	svcCfg, err := ServiceConfig(cfg.Billing)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&svcCfg)
	}

	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(gormLog),
		persistence.WithPlugins(telemetry.DBPlugins(telemetry.DBTracingConfig{
			Enabled:          cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			DBName:           cfg.Database.DBName,
			SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
			IncludeVariables: cfg.App.Env == "development",
		})...),
	)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	planRepo := persistence.NewGormPaymentPlanRepository(db.DB)
	directory := persistence.NewGormDirectory(db.DB)
	catalog := persistence.NewGormTreatmentCatalog(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB, cfg.Database.ReceivablesIsolation)

	receivables := appbilling.NewReceivableService(scope, directory, svcCfg)
	return &Ledger{
		Database:    db,
		Idempotency: store,
		Invoices:    appbilling.NewInvoiceService(scope, invoiceRepo, directory, catalog, svcCfg),
		Payments:    appbilling.NewPaymentService(scope, paymentRepo, invoiceRepo, store, svcCfg),
		Plans:       appbilling.NewPaymentPlanService(scope, planRepo, catalog, svcCfg),
		Receivables: receivables,
		Exports:     appbilling.NewExportService(invoiceRepo, paymentRepo, receivables, svcCfg),
	}, nil
}

// Close releases the idempotency store and the database
func (l *Ledger) Close() error {
	var errs []error
	if l.Idempotency != nil {
		errs = append(errs, l.Idempotency.Close())
	}
	if l.Database != nil {
		errs = append(errs, l.Database.Close())
	}
	return errors.Join(errs...)
}
