package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-service/config"
	"settlement-service/internal/cache"
	"settlement-service/internal/handler"
	"settlement-service/internal/notifier"
	"settlement-service/internal/provider/paychangu"
	"settlement-service/internal/repository"
	"settlement-service/internal/router"
	"settlement-service/internal/usecase"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting settlement service")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	dbConnStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	dbPool, err := pgxpool.New(context.Background(), dbConnStr)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("connected to database", zap.String("database", cfg.Database.DBName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	store := repository.NewStore(dbPool)
	walletRepo := repository.NewWalletRepository(dbPool)
	txRepo := repository.NewTransactionRepository(dbPool)
	shipmentRepo := repository.NewShipmentRepository(dbPool)

	gateway := paychangu.NewClient(paychangu.Config{
		SecretKey: cfg.Gateway.SecretKey,
		BaseURL:   cfg.Gateway.BaseURL,
		Currency:  cfg.Gateway.Currency,
		Timeout:   cfg.Gateway.Timeout,
	})

	events := notifier.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer events.Close()

	catalogCache := cache.NewCatalog(redisClient, cfg.Redis.CacheTTL)

	settlementUC := usecase.NewSettlementUsecase(
		store, walletRepo, txRepo, shipmentRepo,
		gateway, events, cfg.Settlement.CommissionRate, logger,
	)
	withdrawUC := usecase.NewWithdrawUsecase(
		store, walletRepo, txRepo, gateway, events, logger,
	)
	catalogUC := usecase.NewCatalogUsecase(gateway, catalogCache, logger)

	paymentHandler := handler.NewPaymentHandler(settlementUC, withdrawUC, catalogUC, logger)
	webhookHandler := handler.NewWebhookHandler(settlementUC, cfg.Gateway.WebhookSecret, logger)

	if cfg.Gateway.WebhookSecret == "" {
		logger.Warn("webhook secret not configured, gateway notifications will be rejected")
	}

	r := router.SetupRoutes(paymentHandler, webhookHandler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go withdrawUC.RunReconciliationLoop(sweepCtx, cfg.Settlement.SweepInterval, cfg.Settlement.SweepMaxAge)

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("settlement service started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
