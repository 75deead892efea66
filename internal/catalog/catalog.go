// Package catalog provides the immutable plan catalog: the set of purchasable
// tiers, their token allotments, assignment quotas and eligible grades.
package catalog

import (
	"github.com/shopspring/decimal"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// Catalog is the read-only set of plan definitions. It is constructed once at
// process start and passed by reference; no locking is required.
type Catalog struct {
	plans map[types.PlanType]*models.PlanDefinition
	order []types.PlanType
}

// legacy plan-type names accepted on lookup
var legacyAliases = map[types.PlanType]types.PlanType{
	types.PlanBasic: types.PlanP,
	types.PlanPro:   types.PlanPMD,
}

// Default returns the built-in plan catalog.
func Default() *Catalog {
	return New([]*models.PlanDefinition{
		{
			Type:               types.PlanFree,
			Name:               "Free",
			Price:              decimal.Zero,
			PriceFormatted:     "0",
			TokensPerMonth:     5000,
			DurationDays:       0,
			AssignmentsAllowed: 1,
			AllowedGrades:      []types.Grade{types.GradePass},
		},
		{
			Type:               types.PlanP,
			Name:               "Pass",
			Price:              decimal.NewFromInt(30000),
			PriceFormatted:     "30,000",
			TokensPerMonth:     100000,
			DurationDays:       30,
			AssignmentsAllowed: 10,
			AllowedGrades:      []types.Grade{types.GradePass},
		},
		{
			Type:               types.PlanPM,
			Name:               "Pass + Merit",
			Price:              decimal.NewFromInt(50000),
			PriceFormatted:     "50,000",
			TokensPerMonth:     150000,
			DurationDays:       30,
			AssignmentsAllowed: 15,
			AllowedGrades:      []types.Grade{types.GradePass, types.GradeMerit},
		},
		{
			Type:               types.PlanPMD,
			Name:               "Pass + Merit + Distinction",
			Price:              decimal.NewFromInt(80000),
			PriceFormatted:     "80,000",
			TokensPerMonth:     250000,
			DurationDays:       30,
			AssignmentsAllowed: 20,
			AllowedGrades:      []types.Grade{types.GradePass, types.GradeMerit, types.GradeDistinction},
		},
		{
			Type:               types.PlanUnlimited,
			Name:               "Unlimited",
			Price:              decimal.NewFromInt(150000),
			PriceFormatted:     "150,000",
			TokensPerMonth:     0,
			DurationDays:       30,
			AssignmentsAllowed: -1,
			AllowedGrades:      []types.Grade{types.GradePass, types.GradeMerit, types.GradeDistinction},
		},
		{
			Type:               types.PlanCustom,
			Name:               "Custom",
			Price:              decimal.Zero, // priced by quantity via the calculator
			PriceFormatted:     "-",
			TokensPerMonth:     0,
			DurationDays:       30,
			AssignmentsAllowed: -1,
			AllowedGrades:      []types.Grade{types.GradePass, types.GradeMerit, types.GradeDistinction},
			IsCustom:           true,
		},
	})
}

// New builds a catalog from the given definitions, preserving order.
func New(plans []*models.PlanDefinition) *Catalog {
	c := &Catalog{
		plans: make(map[types.PlanType]*models.PlanDefinition, len(plans)),
		order: make([]types.PlanType, 0, len(plans)),
	}
	for _, p := range plans {
		c.plans[p.Type] = p
		c.order = append(c.order, p.Type)
	}
	return c
}

// Lookup returns the plan definition for the given type, following legacy
// aliases (BASIC, PRO). The boolean reports whether the plan exists.
func (c *Catalog) Lookup(t types.PlanType) (*models.PlanDefinition, bool) {
	if alias, ok := legacyAliases[t]; ok {
		t = alias
	}
	p, ok := c.plans[t]
	return p, ok
}

// List returns all plan definitions in catalog order.
func (c *Catalog) List() []*models.PlanDefinition {
	out := make([]*models.PlanDefinition, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.plans[t])
	}
	return out
}
