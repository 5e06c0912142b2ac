package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/api/rest"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/config"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/database"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/notification"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/telemetry"
	"github.com/auctionhub/online-auction-backend/internal/service/bidding"
	"github.com/auctionhub/online-auction-backend/internal/service/closing"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	pool, err := database.NewConnectionPool(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	var publisher notification.EventPublisher
	if cfg.Redis.URL != "" {
		redisPublisher, err := notification.NewRedisPublisher(&cfg.Redis, cfg.Notification.Channel)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisPublisher.Close()
		publisher = redisPublisher
	} else {
		logger.Warn("no redis URL configured, event publishing disabled")
	}

	dispatcher := notification.NewDispatcher(
		cfg.Notification.QueueSize,
		publisher,
		notification.NewLogMailer(logger),
		logger,
	)
	dispatcher.Start()
	defer dispatcher.Stop()

	products := database.NewProductRepository(pool.Pool())
	svc := bidding.NewService(
		database.NewTxManager(pool),
		database.NewReviewRepository(pool.Pool()),
		database.NewSettingsRepository(pool.Pool(), &cfg.Auction, logger),
		dispatcher,
		prometheusMetrics{},
		logger,
		bidding.Config{MinRatingPoint: cfg.Auction.MinRatingPoint},
	)

	worker := closing.NewWorker(products, dispatcher, cfg.Closing.BatchSize, logger)
	if err := worker.Start(cfg.Closing.Schedule); err != nil {
		logger.Fatal("failed to start closing worker", zap.Error(err))
	}
	defer worker.Stop()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", MetricsHandler())
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	server := rest.NewServer(cfg, svc, products, pool, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}
