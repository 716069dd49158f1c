package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	aidomain "github.com/smallbiznis/invoicely/internal/ai/domain"
	auditdomain "github.com/smallbiznis/invoicely/internal/audit/domain"
	authdomain "github.com/smallbiznis/invoicely/internal/auth/domain"
	"github.com/smallbiznis/invoicely/internal/authorization"
	billingdomain "github.com/smallbiznis/invoicely/internal/billing/domain"
	blogdomain "github.com/smallbiznis/invoicely/internal/blog/domain"
	"github.com/smallbiznis/invoicely/internal/config"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/observability"
	obsmiddleware "github.com/smallbiznis/invoicely/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	obstracing "github.com/smallbiznis/invoicely/internal/observability/tracing"
	publicinvoicedomain "github.com/smallbiznis/invoicely/internal/publicinvoice/domain"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
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
	engine           *gin.Engine
	cfg              config.Config
	log              *zap.Logger
	verifier         authdomain.Verifier
	authzSvc         authorization.Service
	userSvc          userdomain.Service
	quotaSvc         quotadomain.Service
	invoiceSvc       invoicedomain.Service
	publicInvoiceSvc publicinvoicedomain.Service
	aiSvc            aidomain.Service
	billingSvc       billingdomain.Service
	blogSvc          blogdomain.Service
	pdf              publicinvoicedomain.PDFRenderer
	auditSvc         auditdomain.Service
	limiter          *ratelimit.Limiter
	obsMetrics       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	Log              *zap.Logger
	Verifier         authdomain.Verifier
	AuthzSvc         authorization.Service
	UserSvc          userdomain.Service
	QuotaSvc         quotadomain.Service
	InvoiceSvc       invoicedomain.Service
	PublicInvoiceSvc publicinvoicedomain.Service
	AISvc            aidomain.Service
	BillingSvc       billingdomain.Service
	BlogSvc          blogdomain.Service
	PDF              publicinvoicedomain.PDFRenderer `optional:"true"`
	AuditSvc         auditdomain.Service             `optional:"true"`
	Limiter          *ratelimit.Limiter              `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics             `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		log:              p.Log.Named("http.server"),
		verifier:         p.Verifier,
		authzSvc:         p.AuthzSvc,
		userSvc:          p.UserSvc,
		quotaSvc:         p.QuotaSvc,
		invoiceSvc:       p.InvoiceSvc,
		publicInvoiceSvc: p.PublicInvoiceSvc,
		aiSvc:            p.AISvc,
		billingSvc:       p.BillingSvc,
		blogSvc:          p.BlogSvc,
		pdf:              p.PDF,
		auditSvc:         p.AuditSvc,
		limiter:          p.Limiter,
		obsMetrics:       p.ObsMetrics,
	}
	svc.registerAPIRoutes()
	svc.registerPublicRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Webhooks --------
	api.POST("/webhooks/stripe", s.StripeWebhook)

	// -------- Blog --------
	api.GET("/blog", s.ListPosts)
	api.GET("/blog/:slug", s.GetPost)

	authed := api.Group("", s.AuthRequired())

	// -------- Quota --------
	authed.GET("/prompt-usage", s.GetPromptUsage)
	authed.GET("/invoice-limits", s.GetInvoiceLimits)

	// -------- AI --------
	ai := authed.Group("/ai", s.RateLimit(ratelimit.ScopeAI, userSubject))
	{
		ai.POST("/generate-invoice", s.GenerateInvoice)
		ai.POST("/summarize", s.Summarize)
	}

	// -------- Invoices --------
	authed.GET("/invoices", s.ListInvoices)
	authed.POST("/invoices", s.CreateInvoice)
	authed.GET("/invoices/:id", s.GetInvoiceByID)
	authed.PUT("/invoices/:id", s.UpdateInvoice)
	authed.DELETE("/invoices/:id", s.DeleteInvoice)
	authed.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)
	authed.POST("/invoices/:id/share", s.ShareInvoice)
	authed.DELETE("/invoices/:id/share", s.RevokeInvoiceShare)

	// -------- Preferences --------
	authed.GET("/preferences", s.GetPreferences)
	authed.PUT("/preferences", s.UpdatePreferences)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public", s.RateLimit(ratelimit.ScopePublic, clientIPSubject))
	public.GET("/invoices/:token", s.GetPublicInvoice)
	public.GET("/invoices/:token/pdf", s.DownloadPublicInvoicePDF)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())
	admin.GET("/users/:id/quota",
		s.authorizeAction(authorization.ObjectQuota, authorization.ActionQuotaRead),
		s.GetUserQuota,
	)
	admin.POST("/users/:id/quota",
		s.authorizeAction(authorization.ObjectQuota, authorization.ActionQuotaAdjust),
		s.AdjustUserQuota,
	)
	admin.GET("/users/:id/quota/audit",
		s.authorizeAction(authorization.ObjectQuota, authorization.ActionQuotaRead),
		s.ListUserQuotaAudit,
	)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
