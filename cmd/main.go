package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"celulas/membership/internal/config"
	"celulas/membership/internal/handler"
	"celulas/membership/internal/metrics"
	"celulas/membership/internal/model"
	"celulas/membership/internal/repository"
	"celulas/membership/internal/service"
	jwtpkg "celulas/membership/pkg/jwt"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWT.SigningKey == "" {
		logger.Fatal("jwt.signing_key must be set")
	}

	// 3. Connect to the database
	db, err := config.NewDB(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}

	// 4. Auto-migrate if enabled
	if cfg.Database.AutoMigrateEnabled() {
		if err := model.AutoMigrate(db); err != nil {
			logger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		logger.Info("database migration completed")
	}

	// 5. Initialize state store (Redis or in-memory)
	var stateStore repository.StateStore
	switch cfg.State.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		stateStore = repository.NewRedisStateStore(redisClient)
		logger.Info("using Redis state store")
	case "memory":
		stateStore = repository.NewMemoryStateStore()
		logger.Info("using in-memory state store")
	default:
		logger.Fatal("unknown state backend", zap.String("backend", cfg.State.Backend))
	}

	// 6. Initialize repositories
	userRepo := repository.NewPGUserRepository(db)
	identityRepo := repository.NewPGIdentityRepository(db)
	groupRepo := repository.NewPGGroupRepository(db)
	codeRepo := repository.NewPGInvitationCodeRepository(db)

	// 7. Initialize JWT manager
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.SigningKey,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
	)

	// 8. Initialize services
	mailer, err := service.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		logger.Fatal("invalid smtp config", zap.Error(err))
	}
	if mailer == nil {
		logger.Info("smtp not configured, invitation links must be shared manually")
	}

	invitationService := service.NewInvitationService(codeRepo, groupRepo, mailer, cfg.Invite, logger.Named("invitations"))
	provisioner := service.NewProvisioner(userRepo, groupRepo)
	authService := service.NewAuthService(
		userRepo, identityRepo, invitationService, provisioner, stateStore,
		jwtManager, cfg.Invite.Enabled, logger.Named("auth"),
	)
	groupService := service.NewGroupService(groupRepo)

	// 9. Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	invitationHandler := handler.NewInvitationHandler(invitationService, authService)
	adminHandler := handler.NewAdminHandler(invitationService, groupService)

	// 10. Register metrics
	metrics.Register(prometheus.DefaultRegisterer)

	// 11. Setup router
	router := handler.SetupRouter(cfg, logger, jwtManager, stateStore, prometheus.DefaultGatherer,
		authHandler, invitationHandler, adminHandler)

	// 12. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 13. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.Bool("invite_required", cfg.Invite.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 14. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
