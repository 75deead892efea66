// Package main provides an operator CLI for settling pending payments.
// Payment reconciliation is manual: an operator checks the bank or card
// statement and records the outcome here.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/token-ledger/internal/catalog"
	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/pricing"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/types"
)

func main() {
	var (
		paymentID = flag.String("payment", "", "Payment transaction ID to settle")
		outcome   = flag.String("outcome", "", "Settlement outcome: PAID or REJECTED")
		list      = flag.Bool("list-pending", false, "List overdue pending payments instead of settling")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	paymentRepo := storage.NewPaymentRepository(postgres)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *list {
		overdue, err := paymentRepo.ListOverduePending(ctx, time.Now(), 100)
		if err != nil {
			log.Fatalf("Failed to list overdue payments: %v", err)
		}
		if len(overdue) == 0 {
			log.Println("No overdue pending payments")
			return
		}
		for _, p := range overdue {
			log.Printf("%s  user=%s  plan=%s  amount=%s  expired=%s",
				p.ID, p.UserID, p.PlanType, p.FinalAmount.String(), p.ExpiresAt.Format(time.RFC3339))
		}
		return
	}

	if *paymentID == "" {
		log.Fatal("-payment is required")
	}

	status := types.PaymentStatus(*outcome)
	if status != types.PaymentPaid && status != types.PaymentRejected {
		log.Fatalf("-outcome must be %s or %s", types.PaymentPaid, types.PaymentRejected)
	}

	calculator, err := pricing.NewCalculator(&cfg.Pricing)
	if err != nil {
		log.Fatalf("Invalid pricing configuration: %v", err)
	}

	// Settlement changes the user's balance; wire the cache and the usage
	// mirror like the server does so both stay consistent. Either may be down.
	var cache service.LedgerCache
	if redisCache, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		log.Printf("Redis unavailable, cached balances will stay stale until TTL: %v", err)
	} else {
		defer redisCache.Close() // nolint:errcheck
		cache = storage.NewCacheService(redisCache, cfg.Cache.TTL)
	}

	var mirror service.UsageMirror
	if clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse); err != nil {
		log.Printf("ClickHouse unavailable, settling without the usage mirror: %v", err)
	} else {
		defer clickhouse.Close() // nolint:errcheck
		mirror = storage.NewUsageArchive(clickhouse)
	}

	balanceRepo := storage.NewBalanceRepository(postgres)
	txRepo := storage.NewTokenTransactionRepository(postgres)
	ledgerService := service.NewLedgerService(balanceRepo, txRepo, cache, mirror)
	paymentService := service.NewPaymentService(paymentRepo, catalog.Default(), calculator, cfg.Payment.ExpiryWindow, ledgerService)

	payment, err := paymentService.Settle(ctx, *paymentID, status)
	if err != nil {
		log.Fatalf("Settlement failed: %v", err)
	}

	log.Printf("Payment %s settled as %s (user=%s, plan=%s, amount=%s)",
		payment.ID, payment.Status, payment.UserID, payment.PlanType, payment.FinalAmount.String())

	// The mirror write is asynchronous; give it a moment before exit
	if mirror != nil {
		time.Sleep(time.Second)
	}
}
