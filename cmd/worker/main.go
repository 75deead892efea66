// Package main provides the sweep worker entry point for the token ledger service.
// It expires overdue pending payments and applies due monthly resets on a timer.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/token-ledger/internal/catalog"
	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/pricing"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/worker"
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
	logger.Info("Token ledger sweep worker starting")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	var cache service.LedgerCache
	if redis, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, resets will not invalidate cache entries")
	} else {
		defer redis.Close() // nolint:errcheck
		cache = storage.NewCacheService(redis, cfg.Cache.TTL)
	}

	var mirror service.UsageMirror
	if clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse); err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, running without usage mirror")
	} else {
		defer clickhouse.Close() // nolint:errcheck
		mirror = storage.NewUsageArchive(clickhouse)
	}

	balanceRepo := storage.NewBalanceRepository(postgres)
	txRepo := storage.NewTokenTransactionRepository(postgres)
	paymentRepo := storage.NewPaymentRepository(postgres)

	calculator, err := pricing.NewCalculator(&cfg.Pricing)
	if err != nil {
		log.Fatalf("Invalid pricing configuration: %v", err)
	}

	ledgerService := service.NewLedgerService(balanceRepo, txRepo, cache, mirror)
	paymentService := service.NewPaymentService(paymentRepo, catalog.Default(), calculator, cfg.Payment.ExpiryWindow, ledgerService)

	sweeper := worker.NewSweeper(paymentService, ledgerService, cfg.Sweep.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	cancel()
	<-done
}
