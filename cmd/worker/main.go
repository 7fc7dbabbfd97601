package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/rwaswift/compliance-api/internal/config"
	"github.com/rwaswift/compliance-api/internal/email"
	"github.com/rwaswift/compliance-api/internal/repository/postgres"
	webhookService "github.com/rwaswift/compliance-api/internal/service/webhook"
	"github.com/rwaswift/compliance-api/pkg/logger"
	redisBroker "github.com/rwaswift/compliance-api/pkg/messaging/redis"
	"github.com/rwaswift/compliance-api/pkg/metrics"
	"github.com/rwaswift/compliance-api/pkg/worker"
)

// WorkerConfig holds worker-only tuning knobs, taken from the environment.
type WorkerConfig struct {
	BatchSize       int           `envconfig:"WORKER_BATCH_SIZE" default:"100"`
	PollInterval    time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"30s"`
	RetryGrace      time.Duration `envconfig:"WORKER_RETRY_GRACE" default:"2m"`
	CleanupInterval time.Duration `envconfig:"WORKER_CLEANUP_INTERVAL" default:"1h"`
	HealthPort      string        `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
}

func setupHealthCheck(appLogger *logger.Logger, port string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			appLogger.Fatal(err, "health check server failed")
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var workerCfg WorkerConfig
	if err := envconfig.Process("", &workerCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	}).WithComponent("worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

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

	webhookRepo := postgres.NewWebhookRepository(db)
	deliveryRepo := postgres.NewWebhookDeliveryRepository(db)

	m := metrics.NewMetrics("rwaswift", "worker")

	deliverer := webhookService.NewDeliverer(
		webhookRepo,
		deliveryRepo,
		appLogger.WithComponent("webhook-deliverer"),
		m,
		webhookService.WithMaxBackoff(cfg.Delivery.MaxBackoff),
	)

	retryProcessor := worker.NewRetryProcessor(
		deliveryRepo,
		webhookRepo,
		deliverer,
		worker.RetryProcessorConfig{
			BatchSize:    workerCfg.BatchSize,
			PollInterval: workerCfg.PollInterval,
			Grace:        workerCfg.RetryGrace,
		},
		appLogger.WithComponent("retry-processor"),
		m,
	)

	cleanupWorker := worker.NewDeliveryCleanupWorker(
		deliveryRepo,
		cfg.Delivery.LogRetention,
		workerCfg.CleanupInterval,
		appLogger.WithComponent("delivery-cleanup"),
	)

	var emailSvc email.Service
	if cfg.Features.EmailEnabled {
		emailSvc = email.NewSMTPService(cfg.SMTP, appLogger.WithComponent("email"))
	} else {
		emailSvc = email.NewNoopService()
	}
	notifier := worker.NewEmailNotifier(broker, emailSvc, appLogger.WithComponent("email-notifier"))

	setupHealthCheck(appLogger, workerCfg.HealthPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		retryProcessor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanupWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := notifier.Start(ctx); err != nil {
			appLogger.Error(err, "email notifier stopped")
		}
	}()
	wg.Wait()
}
