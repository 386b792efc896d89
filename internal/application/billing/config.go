package billing

import (
	"time"

	"github.com/clinic/ledger/internal/domain/billing"
	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/domain/shared/valueobject"
	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
)

// Config holds the ledger knobs the services depend on
type Config struct {
	Currency        valueobject.Currency
	CodePrefix      string
	BatchSize       int
	ExportBatchSize int
	PlanTolerance   decimal.Decimal
	IdempotencyTTL  time.Duration

	// Metrics may be nil
	Metrics *telemetry.LedgerMetrics
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Currency:        valueobject.DefaultCurrency,
		CodePrefix:      billing.InvoiceCodePrefix,
		BatchSize:       20,
		ExportBatchSize: 20,
		PlanTolerance:   valueobject.DefaultTolerance,
		IdempotencyTTL:  shared.DefaultIdempotencyTTL,
	}
}

// withDefaults fills zero values from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	if c.CodePrefix == "" {
		c.CodePrefix = d.CodePrefix
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.ExportBatchSize <= 0 {
		c.ExportBatchSize = d.ExportBatchSize
	}
	if c.PlanTolerance.IsZero() {
		c.PlanTolerance = d.PlanTolerance
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = d.IdempotencyTTL
	}
	return c
}
