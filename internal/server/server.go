package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/observability"
	obslogger "github.com/dev-orchid/shiksha-sub001/internal/observability/logger"
	obsmetrics "github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	obstracing "github.com/dev-orchid/shiksha-sub001/internal/observability/tracing"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	apiKeySvc  apikeydomain.Service
	auditSvc   auditdomain.Service
	invoiceSvc invoicedomain.Service
	paymentSvc paymentdomain.Service
	broker     gatewaydomain.Broker
	verifier   gatewaydomain.Verifier
	limiter    *ratelimit.CheckoutLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	APIKeySvc  apikeydomain.Service
	AuditSvc   auditdomain.Service
	InvoiceSvc invoicedomain.Service
	PaymentSvc paymentdomain.Service
	Broker     gatewaydomain.Broker
	Verifier   gatewaydomain.Verifier
	Limiter    *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	metrics := p.ObsMetrics
	if metrics == nil {
		metrics = obsmetrics.NewNoop()
	}
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http"),
		apiKeySvc:  p.APIKeySvc,
		auditSvc:   p.AuditSvc,
		invoiceSvc: p.InvoiceSvc,
		paymentSvc: p.PaymentSvc,
		broker:     p.Broker,
		verifier:   p.Verifier,
		limiter:    p.Limiter,
		obsMetrics: metrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired())

	invoices := api.Group("/invoices")
	invoices.POST("", s.RequireScope(apikeydomain.ScopeInvoicesWrite), s.CreateInvoice)
	invoices.GET("", s.RequireScope(apikeydomain.ScopeInvoicesRead), s.ListInvoices)
	invoices.GET("/:id", s.RequireScope(apikeydomain.ScopeInvoicesRead), s.GetInvoice)
	invoices.POST("/:id/cancel", s.RequireScope(apikeydomain.ScopeInvoicesWrite), s.CancelInvoice)
	invoices.POST("/:id/late-fee", s.RequireScope(apikeydomain.ScopeInvoicesWrite), s.AssessLateFee)
	invoices.GET("/:id/payments", s.RequireScope(apikeydomain.ScopeInvoicesRead), s.ListInvoicePayments)

	payments := api.Group("/payments")
	payments.POST("", s.RequireScope(apikeydomain.ScopePaymentsWrite), s.RecordPayment)
	payments.GET("/:id/receipt", s.RequireScope(apikeydomain.ScopeInvoicesRead), s.GetReceipt)
	payments.POST("/:id/refund", s.RequireScope(apikeydomain.ScopePaymentsWrite), s.RefundPayment)

	gateway := api.Group("/gateway", s.CheckoutRateLimit())
	gateway.POST("/orders", s.RequireScope(apikeydomain.ScopePaymentsWrite), s.CreateGatewayOrder)
	gateway.GET("/orders/:id", s.RequireScope(apikeydomain.ScopeInvoicesRead), s.GetGatewayOrder)
	gateway.POST("/callback", s.RequireScope(apikeydomain.ScopePaymentsWrite), s.GatewayCallback)

	api.GET("/audit-logs", s.RequireScope(apikeydomain.ScopeInvoicesRead), s.ListAuditLogs)

	keys := api.Group("/api-keys", s.RequireScope(apikeydomain.ScopeAPIKeysManage))
	keys.GET("", s.ListAPIKeys)
	keys.POST("", s.CreateAPIKey)
	keys.POST("/:key_id/rotate", s.RotateAPIKey)
	keys.POST("/:key_id/revoke", s.RevokeAPIKey)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/gateway/:provider", s.HandleGatewayWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
