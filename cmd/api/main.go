package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/wabaledger/api/routes"
	"github.com/angelmondragon/wabaledger/internal/failedwebhooks"
	"github.com/angelmondragon/wabaledger/internal/ingress"
	"github.com/angelmondragon/wabaledger/internal/ledger"
	"github.com/angelmondragon/wabaledger/internal/messages"
	"github.com/angelmondragon/wabaledger/internal/statuses"
	"github.com/angelmondragon/wabaledger/internal/tenants"
	"github.com/angelmondragon/wabaledger/internal/webhooks/whatsapp"
	"github.com/angelmondragon/wabaledger/pkg/config"
	"github.com/angelmondragon/wabaledger/pkg/db"
	"github.com/angelmondragon/wabaledger/pkg/instance"
	"github.com/angelmondragon/wabaledger/pkg/logger"
	"github.com/angelmondragon/wabaledger/pkg/metrics"
	"github.com/angelmondragon/wabaledger/pkg/migrate"
	"github.com/angelmondragon/wabaledger/pkg/pubsub"
	"github.com/angelmondragon/wabaledger/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

type collaborator interface {
	whatsapp.TemplateEventHandler
	whatsapp.ClickHandler
	whatsapp.InboundHandler
}

func main() {
	var exitCode int
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	closers := []func() error{dbClient.Close, redisClient.Close}
	defer func() {
		var closeErr error
		for i := len(closers) - 1; i >= 0; i-- {
			closeErr = multierr.Append(closeErr, closers[i]())
		}
		if closeErr != nil {
			logg.Error(context.Background(), "error closing resources", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ingressMetrics := metrics.NewIngressMetrics(registry)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	tenantRepo := tenants.NewRepository(dbClient.DB())
	resolver := tenants.NewResolver(
		tenants.NewCachedDirectory(tenantRepo, redisClient, cfg.Tenants.CacheTTL, logg),
		logg,
	)

	messageRepo := messages.NewRepository(dbClient.DB())
	updater, err := statuses.NewUpdater(messageRepo, messages.NewStatusWriter(dbClient.DB(), logg), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create status updater", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(dbClient.DB()),
		Messages:   messageRepo,
		Businesses: tenantRepo,
		Metrics:    ledgerMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	failedRepo := failedwebhooks.NewRepository(dbClient.DB())

	var handlers collaborator = whatsapp.NewLogHandler(logg)
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		closers = append(closers, psClient.Close)
		forwarder, err := whatsapp.NewPubSubForwarder(psClient, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create pubsub forwarder", err)
			os.Exit(1)
		}
		handlers = forwarder
	}

	queue := ingress.NewQueue(cfg.Ingress.QueueCapacity, ingressMetrics)
	dispatcher, err := whatsapp.NewDispatcher(whatsapp.DispatcherParams{
		Registry:  whatsapp.DefaultRegistry(),
		Resolver:  resolver,
		Ledger:    ledgerService,
		Statuses:  updater,
		Templates: handlers,
		Clicks:    handlers,
		Inbound:   handlers,
		Failed:    failedRepo,
		Metrics:   ledgerMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}
	consumer, err := whatsapp.NewConsumer(queue, dispatcher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create consumer", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	consumerDone := make(chan error, 1)
	go func() { consumerDone <- consumer.Run(consumerCtx) }()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Queue:          queue,
			FailedWebhooks: failedRepo,
			SendResponses:  ledgerService,
			Gatherer:       registry,
			IngressMetrics: ingressMetrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "http server shutdown failed", err)
	}

	stopConsumer()
	select {
	case err := <-consumerDone:
		if err != nil {
			logg.Error(ctx, "consumer stopped with error", err)
		}
	case <-shutdownCtx.Done():
		logg.Warn(ctx, "consumer did not stop before the shutdown deadline")
	}
	logg.Info(logg.WithField(ctx, "queue_depth", queue.Depth()), "api server stopped")
}
