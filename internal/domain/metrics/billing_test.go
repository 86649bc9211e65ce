package metrics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceForConversations_TierBoundaries(t *testing.T) {
	tests := []struct {
		name          string
		count         int
		plan          string
		included      int
		overageCount  int
		expectedTotal string
	}{
		{"zero conversations", 0, PlanBasic, 200, 0, "58.00"},
		{"just under basic limit", 199, PlanBasic, 200, 0, "58.00"},
		{"at basic limit", 200, PlanBasic, 200, 0, "58.00"},
		{"just over basic limit", 201, PlanProfessional, 400, 0, "116.00"},
		{"at professional limit", 400, PlanProfessional, 400, 0, "116.00"},
		{"just over professional limit", 401, PlanEnterprise, 1250, 0, "290.00"},
		{"at enterprise limit", 1250, PlanEnterprise, 1250, 0, "290.00"},
		{"one over enterprise limit", 1251, PlanEnterprise, 1250, 1, "290.25"},
		{"heavy overage", 2250, PlanEnterprise, 1250, 1000, "540.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := PriceForConversations(tt.count)
			assert.Equal(t, tt.plan, tier.Plan)
			assert.Equal(t, tt.included, tier.IncludedConversations)
			assert.Equal(t, tt.overageCount, tier.OverageCount)
			assert.True(t, tier.TotalCost.Equal(decimal.RequireFromString(tt.expectedTotal)),
				"total cost: got %s, want %s", tier.TotalCost, tt.expectedTotal)
		})
	}
}

func TestPriceForConversations_TotalCostNonDecreasing(t *testing.T) {
	prev := decimal.Zero
	for count := 0; count <= 1500; count++ {
		total := PriceForConversations(count).TotalCost
		assert.True(t, total.GreaterThanOrEqual(prev),
			"total cost decreased at count %d: %s < %s", count, total, prev)
		prev = total
	}
}

func TestPriceForConversations_OverageOnlyAboveEnterpriseLimit(t *testing.T) {
	assert.True(t, PriceForConversations(1250).OverageCost.IsZero())
	over := PriceForConversations(1251)
	assert.True(t, over.TotalCost.GreaterThan(PriceForConversations(1250).TotalCost))
	assert.True(t, over.OverageCost.Equal(decimal.RequireFromString("0.25")))
}

func TestPriceForConversations_NegativeCountClampedToZero(t *testing.T) {
	tier := PriceForConversations(-5)
	assert.Equal(t, PlanBasic, tier.Plan)
	assert.Equal(t, 0, tier.ConversationCount)
	assert.True(t, tier.TotalCost.Equal(decimal.RequireFromString("58.00")))
}
