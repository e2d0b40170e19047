package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payoutd/internal/account"
	"github.com/smallbiznis/payoutd/internal/apikey"
	apikeydomain "github.com/smallbiznis/payoutd/internal/apikey/domain"
	"github.com/smallbiznis/payoutd/internal/audit"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/authorization"
	"github.com/smallbiznis/payoutd/internal/booking"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/export"
	"github.com/smallbiznis/payoutd/internal/notification"
	"github.com/smallbiznis/payoutd/internal/observability"
	obsmiddleware "github.com/smallbiznis/payoutd/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payoutd/internal/observability/tracing"
	"github.com/smallbiznis/payoutd/internal/payout"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the inbound settlement trigger and the admin API. It expects
// config, observability, db, clock, and a snowflake node from the binary.
var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	apikey.Module,
	ratelimit.Module,
	account.Module,
	booking.Module,
	notification.Module,
	payout.Module,
	export.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	apiKeySvc     apikeydomain.Service
	apiKeyLimiter *ratelimit.APIKeyLimiter
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	settlementSvc payoutdomain.SettlementService
	adminSvc      payoutdomain.AdminService
	exportSvc     *export.Service
	policy        *config.RiskPolicyHolder
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	APIKeySvc     apikeydomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	SettlementSvc payoutdomain.SettlementService
	AdminSvc      payoutdomain.AdminService
	ExportSvc     *export.Service
	Policy        *config.RiskPolicyHolder
	APIKeyLimiter *ratelimit.APIKeyLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		apiKeySvc:     p.APIKeySvc,
		apiKeyLimiter: p.APIKeyLimiter,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		settlementSvc: p.SettlementSvc,
		adminSvc:      p.AdminSvc,
		exportSvc:     p.ExportSvc,
		policy:        p.Policy,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerInternalRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerInternalRoutes exposes the trigger the booking subsystem calls once
// a rental is paid or cancelled.
func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal/v1", s.APIKeyRequired())

	internal.POST("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionRequest), s.RequestPayout)
	internal.POST("/refunds", s.authorize(authorization.ObjectRefund, authorization.ActionRequest), s.RequestRefund)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/v1", s.APIKeyRequired())

	// -------- Payouts --------
	admin.GET("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionView), s.ListPayouts)
	admin.GET("/payouts/export", s.authorize(authorization.ObjectPayout, authorization.ActionExport), s.ExportPayouts)
	admin.GET("/payouts/:id", s.authorize(authorization.ObjectPayout, authorization.ActionView), s.GetPayout)
	admin.GET("/payouts/:id/attempts", s.authorize(authorization.ObjectPayout, authorization.ActionView), s.ListPayoutAttempts)
	admin.GET("/payouts/:id/transitions", s.authorize(authorization.ObjectPayout, authorization.ActionView), s.ListPayoutTransitions)
	admin.GET("/payouts/:id/receipt", s.authorize(authorization.ObjectPayout, authorization.ActionView), s.DownloadReceipt)
	admin.POST("/payouts/:id/approve", s.authorize(authorization.ObjectPayout, authorization.ActionApprove), s.ApprovePayout)
	admin.POST("/payouts/:id/reject", s.authorize(authorization.ObjectPayout, authorization.ActionReject), s.RejectPayout)

	// -------- Bookings --------
	admin.POST("/bookings/:booking_id/retry", s.authorize(authorization.ObjectPayout, authorization.ActionRetry), s.RetryBooking)

	// -------- Audit --------
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)

	// -------- API keys --------
	admin.GET("/api-keys", s.authorize(authorization.ObjectAPIKey, authorization.ActionView), s.ListAPIKeys)
	admin.POST("/api-keys", s.authorize(authorization.ObjectAPIKey, authorization.ActionCreate), s.CreateAPIKey)
	admin.POST("/api-keys/:key_id/revoke", s.authorize(authorization.ObjectAPIKey, authorization.ActionRevoke), s.RevokeAPIKey)

	// -------- Risk policy --------
	admin.GET("/risk-policy", s.authorize(authorization.ObjectPolicy, authorization.ActionView), s.GetRiskPolicy)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
