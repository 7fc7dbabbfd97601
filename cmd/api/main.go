package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/rwaswift/compliance-api/internal/config"
	"github.com/rwaswift/compliance-api/internal/email"
	healthHandler "github.com/rwaswift/compliance-api/internal/handler/health"
	prometheusHandler "github.com/rwaswift/compliance-api/internal/handler/prometheus"
	verificationHandler "github.com/rwaswift/compliance-api/internal/handler/verification"
	webhookHandler "github.com/rwaswift/compliance-api/internal/handler/webhook"
	"github.com/rwaswift/compliance-api/internal/middleware"
	"github.com/rwaswift/compliance-api/internal/repository/postgres"
	"github.com/rwaswift/compliance-api/internal/router"
	"github.com/rwaswift/compliance-api/internal/service/provider"
	"github.com/rwaswift/compliance-api/internal/service/risk"
	verificationService "github.com/rwaswift/compliance-api/internal/service/verification"
	webhookService "github.com/rwaswift/compliance-api/internal/service/webhook"
	"github.com/rwaswift/compliance-api/pkg/auth"
	"github.com/rwaswift/compliance-api/pkg/logger"
	redisBroker "github.com/rwaswift/compliance-api/pkg/messaging/redis"
	"github.com/rwaswift/compliance-api/pkg/metrics"
	"github.com/rwaswift/compliance-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	verificationRepo := postgres.NewVerificationRepository(db)
	webhookRepo := postgres.NewWebhookRepository(db)
	deliveryRepo := postgres.NewWebhookDeliveryRepository(db)
	orgRepo := postgres.NewOrganizationRepository(db)

	broker, err := redisBroker.NewRedisBroker(redisBroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("rwaswift", "api")

	var emailSvc email.Service
	if cfg.Features.EmailEnabled {
		emailSvc = email.NewSMTPService(cfg.SMTP, appLogger.WithComponent("email"))
	} else {
		emailSvc = email.NewNoopService()
	}

	deliverer := webhookService.NewDeliverer(
		webhookRepo,
		deliveryRepo,
		appLogger.WithComponent("webhook-deliverer"),
		m,
		webhookService.WithMaxBackoff(cfg.Delivery.MaxBackoff),
	)
	webhookSvc := webhookService.NewService(
		webhookRepo,
		deliveryRepo,
		deliverer,
		appLogger.WithComponent("webhook-service"),
	)

	riskEngine := risk.NewEngine(risk.NewSanctionsChecker(time.Now().UnixNano()))
	idProvider := provider.NewMockProvider(provider.DefaultMockLatency)

	verificationSvc := verificationService.NewService(
		verificationRepo,
		orgRepo,
		idProvider,
		riskEngine,
		deliverer,
		emailSvc,
		broker,
		appLogger.WithComponent("verification"),
		m,
		verificationService.Options{
			ProviderEnabled: cfg.Features.IdentityProviderEnabled,
			WebhooksEnabled: cfg.Features.WebhooksEnabled,
			EmailEnabled:    cfg.Features.EmailEnabled,
		},
	)

	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(0)
	authMiddleware := middleware.NewAuthMiddleware(orgRepo, hasher, jwtSvc)

	r := router.NewRouter(
		authMiddleware,
		verificationHandler.NewHandler(verificationSvc),
		webhookHandler.NewHandler(webhookSvc),
		healthHandler.NewHandler(db),
		prometheusHandler.New(),
		router.Config{
			RateLimit:  rate.Limit(50),
			RateBurst:  100,
			CORSConfig: middleware.DefaultCORSConfig(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
