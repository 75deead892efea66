// Package worker provides the background sweep loop that enforces payment
// expiry and monthly resets on a timer. The sweep is an optimization: both
// invariants are also enforced lazily on the read and mutation paths, so a
// stopped worker degrades freshness, not correctness.
package worker

import (
	"context"
	"time"

	"github.com/token-ledger/internal/logging"
)

// PaymentSweeper expires overdue pending payments
type PaymentSweeper interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ResetSweeper applies due monthly resets
type ResetSweeper interface {
	ResetDue(ctx context.Context) (int, error)
}

// Sweeper runs the periodic maintenance pass
type Sweeper struct {
	payments PaymentSweeper
	resets   ResetSweeper
	interval time.Duration
}

// NewSweeper creates a new sweeper
func NewSweeper(payments PaymentSweeper, resets ResetSweeper, interval time.Duration) *Sweeper {
	return &Sweeper{
		payments: payments,
		resets:   resets,
		interval: interval,
	}
}

// Run executes sweep passes until the context is cancelled. One pass runs
// immediately on start.
func (s *Sweeper) Run(ctx context.Context) {
	logger := logging.FromContext(ctx)
	logger.WithField("interval", s.interval.String()).Info("Sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one maintenance pass. Failures are logged and retried on the
// next tick; a failing pass never stops the loop.
func (s *Sweeper) sweep(ctx context.Context) {
	logger := logging.FromContext(ctx)

	expired, err := s.payments.ExpireOverdue(ctx)
	if err != nil {
		logger.WithError(err).Error("Payment expiry sweep failed")
	} else if expired > 0 {
		logger.WithField("expired", expired).Info("Expired overdue payments")
	}

	applied, err := s.resets.ResetDue(ctx)
	if err != nil {
		logger.WithError(err).Error("Monthly reset sweep failed")
	} else if applied > 0 {
		logger.WithField("reset", applied).Info("Applied monthly resets")
	}
}
