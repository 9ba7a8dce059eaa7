package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateStats(t *testing.T) {
	results := []Result{
		Classify("Owner financing available", 150000, 160000),
		Classify("Seller financing on this fixer upper", 60000, 100000),
		Classify("", 70000, 100000),
		Classify("Needs TLC", 95000, 100000),
		Classify("Owner financing available. Cash only.", 0, 0),
	}

	s := CalculateStats(results)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.OwnerFinanceOnly)
	assert.Equal(t, 1, s.Both)
	assert.Equal(t, 1, s.CashDealOnly)
	assert.Equal(t, 2, s.FilteredOut)
	assert.Equal(t, 3, s.Saved())
	assert.Equal(t, 2, s.NeedsWork)
	assert.Equal(t, 1, s.NegativeVetoes)
	assert.Equal(t, 1, s.ByReason[CashDealBoth])
	assert.Equal(t, 1, s.ByReason[CashDealDiscount])
	assert.Equal(t, 2, s.ByFinancingType[FinancingOwnerFinance])
	assert.Equal(t, 1, s.ByFinancingType[FinancingSellerFinance])

	s.Log("test")
}
