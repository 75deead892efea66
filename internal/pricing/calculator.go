// Package pricing provides the custom-plan pricing calculator.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/types"
)

// Calculator maps a requested custom token quantity and target grade to a
// price. Pricing is linear in quantity with a per-grade rate; quantities below
// the per-grade minimum are rejected. The calculator is pure: no side effects,
// no mutable state after construction.
type Calculator struct {
	rates    map[types.Grade]decimal.Decimal
	minimums map[types.Grade]int64
}

// NewCalculator builds a calculator from pricing configuration.
// The DISTINCTION minimum must be strictly higher than the PASS and MERIT
// minimums: higher grades cost more to fulfill downstream.
func NewCalculator(cfg *config.PricingConfig) (*Calculator, error) {
	ratePass, err := decimal.NewFromString(cfg.RatePass)
	if err != nil {
		return nil, fmt.Errorf("invalid PASS rate %q: %w", cfg.RatePass, err)
	}
	rateMerit, err := decimal.NewFromString(cfg.RateMerit)
	if err != nil {
		return nil, fmt.Errorf("invalid MERIT rate %q: %w", cfg.RateMerit, err)
	}
	rateDistinction, err := decimal.NewFromString(cfg.RateDistinction)
	if err != nil {
		return nil, fmt.Errorf("invalid DISTINCTION rate %q: %w", cfg.RateDistinction, err)
	}

	if cfg.MinDistinction <= cfg.MinPass || cfg.MinDistinction <= cfg.MinMerit {
		return nil, fmt.Errorf("DISTINCTION minimum (%d) must exceed PASS (%d) and MERIT (%d) minimums",
			cfg.MinDistinction, cfg.MinPass, cfg.MinMerit)
	}

	return &Calculator{
		rates: map[types.Grade]decimal.Decimal{
			types.GradePass:        ratePass,
			types.GradeMerit:       rateMerit,
			types.GradeDistinction: rateDistinction,
		},
		minimums: map[types.Grade]int64{
			types.GradePass:        cfg.MinPass,
			types.GradeMerit:       cfg.MinMerit,
			types.GradeDistinction: cfg.MinDistinction,
		},
	}, nil
}

// Price returns the price for a custom purchase of quantity tokens at the
// given grade. It fails with INVALID_QUANTITY when quantity is below the
// grade's minimum.
func (c *Calculator) Price(quantity int64, grade types.Grade) (decimal.Decimal, error) {
	if !grade.IsValid() {
		return decimal.Zero, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: fmt.Sprintf("unknown grade: %s", grade),
		}
	}

	minimum := c.minimums[grade]
	if quantity < minimum {
		return decimal.Zero, errors.NewInvalidQuantityError(quantity, minimum, grade).ToServiceError()
	}

	return c.rates[grade].Mul(decimal.NewFromInt(quantity)), nil
}

// Minimum returns the minimum purchasable quantity for the given grade.
func (c *Calculator) Minimum(grade types.Grade) int64 {
	return c.minimums[grade]
}

// Rate returns the per-token rate for the given grade.
func (c *Calculator) Rate(grade types.Grade) decimal.Decimal {
	return c.rates[grade]
}
