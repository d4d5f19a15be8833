package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/catalog"
	"github.com/fjod/go_shop/internal/config"
	h "github.com/fjod/go_shop/internal/http"
	"github.com/fjod/go_shop/internal/payment"
	"github.com/fjod/go_shop/internal/publisher"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/service"
	"github.com/fjod/go_shop/internal/sweeper"
	"github.com/fjod/go_shop/pkg/circuitbreaker"
	"github.com/fjod/go_shop/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx := context.Background()

	if err := repository.RunMigrations(cfg.MongoURI, cfg.MongoDBName, cfg.MigrationsPath); err != nil {
		fatal(log, "failed to run migrations", err)
	}

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		fatal(log, "failed to connect to MongoDB", err)
	}
	log.Info("connected to MongoDB", "database", cfg.MongoDBName)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fatal(log, "redis connection failed", err)
	}

	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY is not set, hosted checkout will fail")
	}
	gateway := payment.NewBreakerGateway(
		payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeAPIURL, cfg.GatewayTimeout),
		circuitbreaker.DefaultConfig("stripe"),
		log,
	)

	products := catalog.NewReader(repository.NewProductRepository(mongoDB), cache.NewRedisCache(redisClient), log)
	orderService := service.NewOrderService(
		repository.NewOrderRepository(mongoDB),
		repository.NewUserRepository(mongoDB),
		products,
		gateway,
		service.Settings{
			Currency:        cfg.Currency,
			DeliveryCharge:  cfg.DeliveryCharge,
			StorefrontURL:   cfg.StorefrontURL,
			PendingOrderTTL: cfg.PendingOrderTTL,
		},
		log,
	)

	kafkaWriter := publisher.NewKafkaWriter(cfg.OrderEventsTopic, cfg.KafkaBrokers...)
	poller := publisher.NewOutboxPoller(repository.NewOutboxRepository(mongoDB), kafkaWriter, cfg.OutboxPollInterval, log)
	pendingSweeper := sweeper.New(orderService, cfg.SweepInterval, log)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		pendingSweeper.Run(workerCtx)
	}()

	router := h.NewRouter(
		h.NewOrdersHandler(orderService, cfg.RequestTimeout, log),
		h.NewAuthenticator(cfg.JWTSecret),
		h.RouterConfig{
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "shop-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("shop service starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	stopWorkers()
	wg.Wait()

	if err := kafkaWriter.Close(); err != nil {
		log.Error("failed to close kafka writer", "error", err)
	}
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.Error("failed to disconnect from MongoDB", "error", err)
	}

	log.Info("server exited")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
