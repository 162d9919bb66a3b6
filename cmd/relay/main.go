package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaypub/relay/pkg/api"
	"github.com/relaypub/relay/pkg/cache"
	"github.com/relaypub/relay/pkg/config"
	"github.com/relaypub/relay/pkg/observability"
	"github.com/relaypub/relay/pkg/pubsub"
	"github.com/relaypub/relay/pkg/storage/postgres"
	"github.com/relaypub/relay/pkg/webhooks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := postgres.Open(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to postgres")
		os.Exit(1)
	}
	if err := postgres.EnsureSchema(db); err != nil {
		logger.WithError(err).Error("Failed to ensure schema")
		os.Exit(1)
	}
	logger.Info("Connected to postgres")

	messageCache, err := cache.New(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to redis")
		os.Exit(1)
	}
	logger.Info("Connected to redis")

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	signer := webhooks.NewSigner(cfg.Webhook.TokenTTL)
	dispatcher := webhooks.NewDispatcher(signer, logger,
		webhooks.WithHTTPClient(&http.Client{Timeout: cfg.Webhook.RequestTimeout}),
		webhooks.WithMaxConcurrent(cfg.Webhook.MaxConcurrent),
		webhooks.WithMetrics(metrics),
	)

	service := pubsub.NewService(
		postgres.NewSubscriberStore(db),
		postgres.NewMessageStore(db),
		messageCache,
		dispatcher,
		cfg.Storage.CacheTTL,
		logger,
		pubsub.WithMetrics(metrics),
	)

	apiServer := api.NewServer(service, logger, metrics)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthChecker := observability.NewHealthChecker(db, messageCache.Client())
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterServer(server)
	shutdown.RegisterServer(healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error { return db.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return messageCache.Close() })

	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("Relay server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
