package models

import (
	"github.com/shopspring/decimal"
	"github.com/token-ledger/internal/types"
)

// PlanDefinition is a catalog entry describing one purchasable tier.
// Catalog data is static configuration, constructed once at startup and
// never mutated afterwards.
type PlanDefinition struct {
	Type           types.PlanType  `json:"type"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	PriceFormatted string          `json:"priceFormatted"`
	TokensPerMonth int64           `json:"tokensPerMonth"`
	DurationDays   int             `json:"durationDays"`
	// AssignmentsAllowed is the quota of generation jobs per period,
	// independent of token count. -1 means unmetered.
	AssignmentsAllowed int           `json:"assignmentsAllowed"`
	AllowedGrades      []types.Grade `json:"allowedGrades"`
	IsCustom           bool          `json:"isCustom"`
}

// AllowsGrade reports whether the plan authorizes generation at the given grade.
func (p *PlanDefinition) AllowsGrade(g types.Grade) bool {
	for _, allowed := range p.AllowedGrades {
		if allowed == g {
			return true
		}
	}
	return false
}

// Unmetered reports whether the plan has no assignment quota.
func (p *PlanDefinition) Unmetered() bool {
	return p.AssignmentsAllowed < 0
}
