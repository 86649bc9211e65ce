package metrics

import (
	"github.com/shopspring/decimal"
)

// Plan identifiers for the usage-based subscription tiers.
const (
	PlanBasic        = "basic"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Tier thresholds and prices. Amounts are currency-agnostic decimals fixed by
// business rule; only the enterprise tier charges per-conversation overage.
var (
	basicLimit        = 200
	professionalLimit = 400
	enterpriseLimit   = 1250

	basicPrice        = decimal.RequireFromString("58.00")
	professionalPrice = decimal.RequireFromString("116.00")
	enterprisePrice   = decimal.RequireFromString("290.00")
	overageUnitPrice  = decimal.RequireFromString("0.25")
)

// BillingTier is the priced plan bracket resolved from a conversation count.
type BillingTier struct {
	Plan                  string          `json:"plan"`
	BasePrice             decimal.Decimal `json:"base_price"`
	IncludedConversations int             `json:"included_conversations"`
	ConversationCount     int             `json:"conversation_count"`
	OverageCount          int             `json:"overage_count"`
	OverageUnitPrice      decimal.Decimal `json:"overage_unit_price"`
	OverageCost           decimal.Decimal `json:"overage_cost"`
	TotalCost             decimal.Decimal `json:"total_cost"`
}

// PriceForConversations resolves the billing tier for an in-period
// conversation count. The step function is deterministic and has no hidden
// state: counts at or below a tier's included limit pay the tier's base price
// with zero overage, and only counts above the enterprise limit accrue
// per-conversation overage charges.
func PriceForConversations(count int) BillingTier {
	if count < 0 {
		count = 0
	}

	tier := BillingTier{
		ConversationCount: count,
		OverageUnitPrice:  overageUnitPrice,
		OverageCost:       decimal.Zero,
	}

	switch {
	case count <= basicLimit:
		tier.Plan = PlanBasic
		tier.BasePrice = basicPrice
		tier.IncludedConversations = basicLimit
	case count <= professionalLimit:
		tier.Plan = PlanProfessional
		tier.BasePrice = professionalPrice
		tier.IncludedConversations = professionalLimit
	default:
		tier.Plan = PlanEnterprise
		tier.BasePrice = enterprisePrice
		tier.IncludedConversations = enterpriseLimit
		if count > enterpriseLimit {
			tier.OverageCount = count - enterpriseLimit
			tier.OverageCost = overageUnitPrice.Mul(decimal.NewFromInt(int64(tier.OverageCount)))
		}
	}

	tier.TotalCost = tier.BasePrice.Add(tier.OverageCost)
	return tier
}
