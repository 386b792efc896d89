package router

import (
	"github.com/clinic/ledger/internal/infrastructure/logger"
	"github.com/clinic/ledger/internal/interfaces/http/handler"
	"github.com/clinic/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers are the ledger endpoints mounted by NewEngine
type Handlers struct {
	Invoices     *handler.InvoiceHandler
	Payments     *handler.PaymentHandler
	PaymentPlans *handler.PaymentPlanHandler
	Receivables  *handler.ReceivableHandler
	Exports      *handler.ExportHandler
	Health       *handler.HealthHandler
}

// EngineConfig holds the cross-cutting HTTP settings
type EngineConfig struct {
	ServiceName    string
	TracingEnabled bool
	MaxBodySize    int64
	CORS           middleware.CORSConfig
	TrustedProxies []string
	APIVersion     string
	// Meter enables request metrics when set
	Meter metric.Meter
	// RateLimiter caps requests per client IP when set
	RateLimiter *middleware.RateLimiter
	// Profiling labels request samples for the continuous profiler
	Profiling bool
}

// NewEngine builds the gin engine with the middleware chain and all routes.
// Order: request id, tracing, profiling labels, metrics, logging, recovery,
// then the request guards.
func NewEngine(cfg EngineConfig, h Handlers, log *zap.Logger) (*gin.Engine, error) {
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.SpanEnricher(),
		middleware.Profiling(cfg.Profiling),
		middleware.HTTPMetrics(cfg.Meter),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
	)
	if cfg.RateLimiter != nil {
		engine.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}

	api := NewAPI(cfg.APIVersion)
	if h.Health != nil {
		api.Add(NewResource("health", "/health").GET("", h.Health.Health))
	}
	if h.Invoices != nil {
		api.Add(NewResource("invoices", "/invoices").
			POST("", h.Invoices.Create).
			GET("", h.Invoices.List).
			GET("/:id", h.Invoices.Get).
			PUT("/:id", h.Invoices.Update).
			PATCH("/:id/status", h.Invoices.ChangeStatus).
			GET("/:id/payments", h.Invoices.ListPayments))
	}
	if h.Payments != nil {
		api.Add(NewResource("payments", "/payments").
			POST("", h.Payments.Apply).
			GET("", h.Payments.List).
			GET("/:id", h.Payments.Get))
	}
	if h.PaymentPlans != nil {
		api.Add(NewResource("payment-plans", "/payment-plans").
			POST("", h.PaymentPlans.Create).
			GET("", h.PaymentPlans.List).
			GET("/:id", h.PaymentPlans.Get).
			PUT("/:id", h.PaymentPlans.Update).
			DELETE("/:id", h.PaymentPlans.Delete).
			GET("/:id/summary", h.PaymentPlans.Summary).
			POST("/:id/installments/:installmentId/pay", h.PaymentPlans.MarkInstallmentPaid))
		api.Add(NewResource("treatments", "/treatments").
			GET("/:treatmentId/payment-plan", h.PaymentPlans.GetByTreatment))
	}
	if h.Receivables != nil {
		api.Add(NewResource("receivables", "/receivables").
			GET("", h.Receivables.List).
			GET("/summary", h.Receivables.Summary).
			GET("/:patientId", h.Receivables.ForPatient))
	}
	if h.Exports != nil {
		api.Add(NewResource("exports", "/exports").
			GET("/:kind", h.Exports.Export))
	}
	api.Mount(engine)

	return engine, nil
}
