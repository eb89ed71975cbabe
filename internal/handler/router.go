package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"celulas/membership/internal/config"
	"celulas/membership/internal/handler/middleware"
	"celulas/membership/internal/repository"
	jwtpkg "celulas/membership/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	stateStore repository.StateStore,
	gatherer prometheus.Gatherer,
	authHandler *AuthHandler,
	invitationHandler *InvitationHandler,
	adminHandler *AdminHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	RegisterValidators()

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS))

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	validateLimit := middleware.RateLimit(stateStore, "validate", cfg.RateLimit.ValidatePerMinute, logger)
	registerLimit := middleware.RateLimit(stateStore, "register", cfg.RateLimit.RegisterPerMinute, logger)

	// Public routes
	public := r.Group("/api/v1")
	{
		public.GET("/invitations/:code", validateLimit, invitationHandler.Validate)

		public.POST("/auth/register", registerLimit, authHandler.Register)
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/refresh", authHandler.Refresh)
	}

	// Protected routes
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(jwtManager))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/me", authHandler.Me)
		protected.POST("/invitations/redeem", invitationHandler.Redeem)
	}

	// Admin routes (JWT + admin check)
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuth(jwtManager))
	admin.Use(middleware.AdminAuth(cfg.Admin.UserIDs))
	{
		admin.POST("/invitation-codes", adminHandler.CreateInvitationCode)
		admin.GET("/invitation-codes", adminHandler.ListInvitationCodes)
		admin.GET("/invitation-codes/:id", adminHandler.GetInvitationCode)
		admin.POST("/invitation-codes/:id/deactivate", adminHandler.DeactivateInvitationCode)
		admin.GET("/invitation-codes/:id/redemptions", adminHandler.ListRedemptions)
		admin.POST("/invitation-codes/:id/send", adminHandler.SendInvitationLink)

		admin.POST("/groups", adminHandler.CreateGroup)
		admin.GET("/groups", adminHandler.ListGroups)
	}

	return r
}
