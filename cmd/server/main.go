// Package main provides the API server entry point for the token ledger service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/token-ledger/internal/api"
	"github.com/token-ledger/internal/catalog"
	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/pricing"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.Info("Token ledger server starting")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	// Redis and ClickHouse are optional: the ledger serves reads from
	// Postgres and skips the mirror when they are unavailable.
	var cache service.LedgerCache
	if redis, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without cache")
	} else {
		defer redis.Close() // nolint:errcheck
		cache = storage.NewCacheService(redis, cfg.Cache.TTL)
	}

	var mirror service.UsageMirror
	var usageReader api.UsageReader
	if clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse); err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, running without usage mirror")
	} else {
		defer clickhouse.Close() // nolint:errcheck
		archive := storage.NewUsageArchive(clickhouse)
		mirror = archive
		usageReader = archive
	}

	balanceRepo := storage.NewBalanceRepository(postgres)
	txRepo := storage.NewTokenTransactionRepository(postgres)
	paymentRepo := storage.NewPaymentRepository(postgres)
	userRepo := storage.NewUserRepository(postgres)

	planCatalog := catalog.Default()
	calculator, err := pricing.NewCalculator(&cfg.Pricing)
	if err != nil {
		log.Fatalf("Invalid pricing configuration: %v", err)
	}

	ledgerService := service.NewLedgerService(balanceRepo, txRepo, cache, mirror)
	paymentService := service.NewPaymentService(paymentRepo, planCatalog, calculator, cfg.Payment.ExpiryWindow, ledgerService)
	gateService := service.NewGateService(ledgerService, planCatalog)

	server := api.NewServer(
		&api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			FreeTierRPS:     cfg.RateLimit.FreeTier,
			PaidTierRPS:     cfg.RateLimit.PaidTier,
			UnlimitedRPS:    cfg.RateLimit.UnlimitedTier,
			OperatorKey:     cfg.Payment.OperatorKey,
		},
		ledgerService,
		paymentService,
		gateService,
		userRepo,
		usageReader,
		planCatalog,
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("API server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}
