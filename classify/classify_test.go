package classify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIsDeterministic(t *testing.T) {
	desc := "Fixer upper with owner financing or rent to own. Needs TLC!"
	first := Classify(desc, 70000, 100000)
	second := Classify(desc, 70000, 100000)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestDiscountThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		wantCash bool
	}{
		{"just under", 79999.99, true},
		{"exactly at", 80000.00, false},
		{"just over", 80000.01, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify("", tt.price, 100000)
			assert.Equal(t, tt.wantCash, res.IsCashDeal)
			require.NotNil(t, res.EightyPercentOfEstimate)
			assert.Equal(t, 80000.0, *res.EightyPercentOfEstimate)
			if tt.wantCash {
				require.NotNil(t, res.CashDealReason)
				assert.Equal(t, CashDealDiscount, *res.CashDealReason)
				assert.Equal(t, []DealType{DealTypeCashDeal}, res.DealTypes)
				assert.True(t, res.ShouldSave)
			} else {
				assert.Nil(t, res.CashDealReason)
				assert.False(t, res.ShouldSave)
			}
		})
	}
}

func TestNeedsWorkAloneIsNotACashDeal(t *testing.T) {
	res := Classify("fixer upper, needs TLC", 95000, 100000)

	assert.True(t, res.NeedsWork)
	assert.Contains(t, res.NeedsWorkKeywords, "fixer upper")
	assert.Contains(t, res.NeedsWorkKeywords, "needs tlc")
	assert.False(t, res.IsCashDeal)
	assert.Nil(t, res.CashDealReason)
	require.NotNil(t, res.DiscountPercentage)
	assert.Equal(t, 5.0, *res.DiscountPercentage)
	assert.Empty(t, res.DealTypes)
	assert.False(t, res.ShouldSave)
}

func TestNeedsWorkWithDiscount(t *testing.T) {
	res := Classify("fixer upper, needs TLC", 70000, 100000)

	assert.True(t, res.IsCashDeal)
	require.NotNil(t, res.CashDealReason)
	assert.Equal(t, CashDealBoth, *res.CashDealReason)
	require.NotNil(t, res.DiscountPercentage)
	assert.Equal(t, 30.0, *res.DiscountPercentage)
	assert.Equal(t, []DealType{DealTypeCashDeal}, res.DealTypes)
}

func TestNegativePhraseVetoesOwnerFinance(t *testing.T) {
	res := Classify("Owner financing available. Cash only, no contingencies.", 200000, 210000)

	assert.False(t, res.IsOwnerFinance)
	assert.Contains(t, res.OwnerFinanceKeywords, "owner financing")
	require.NotNil(t, res.PrimaryOwnerFinanceKeyword)
	assert.Equal(t, "owner financing", *res.PrimaryOwnerFinanceKeyword)
	require.NotNil(t, res.NegativeFinancing)
	assert.Equal(t, reasonCashOnly, res.NegativeFinancing.Reason)
	assert.NotContains(t, res.DealTypes, DealTypeOwnerFinance)

	// financing type labeling ignores the veto
	require.NotNil(t, res.FinancingType)
	assert.Equal(t, FinancingOwnerFinance, *res.FinancingType)
}

func TestRenovationWordsDoNotTriggerNeedsWork(t *testing.T) {
	res := Classify("Completely renovated home with updated kitchen", 250000, 260000)
	assert.False(t, res.NeedsWork)
	assert.Empty(t, res.NeedsWorkKeywords)
}

func TestFinancingTypePriority(t *testing.T) {
	res := Classify("Rent to own or owner financing available", 150000, 160000)

	require.NotNil(t, res.FinancingType)
	assert.Equal(t, FinancingOwnerFinance, *res.FinancingType)
	assert.Equal(t, []FinancingType{FinancingOwnerFinance, FinancingRentToOwn}, res.AllFinancingTypes)
	assert.Equal(t, "Owner Finance (+1 more)", res.FinancingDisplayLabel)

	assert.True(t, res.IsOwnerFinance)
	assert.Equal(t, []string{"owner financing", "rent to own"}, res.OwnerFinanceKeywords)
	require.NotNil(t, res.PrimaryOwnerFinanceKeyword)
	assert.Equal(t, "owner financing", *res.PrimaryOwnerFinanceKeyword)
	assert.Equal(t, []DealType{DealTypeOwnerFinance}, res.DealTypes)
}

func TestMissingDataDefaults(t *testing.T) {
	res := Classify("", 0, 0)

	assert.False(t, res.IsOwnerFinance)
	assert.False(t, res.IsCashDeal)
	assert.False(t, res.NeedsWork)
	assert.False(t, res.ShouldSave)
	assert.Empty(t, res.OwnerFinanceKeywords)
	assert.Empty(t, res.NeedsWorkKeywords)
	assert.Empty(t, res.AllFinancingTypes)
	assert.Empty(t, res.DealTypes)
	assert.Nil(t, res.FinancingType)
	assert.Nil(t, res.PrimaryOwnerFinanceKeyword)
	assert.Nil(t, res.DiscountPercentage)
	assert.Nil(t, res.EightyPercentOfEstimate)
	assert.Nil(t, res.CashDealReason)
	assert.Nil(t, res.NegativeFinancing)
	assert.Equal(t, UnknownFinancingLabel, res.FinancingDisplayLabel)

	// arrays serialize as [] rather than null
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"owner_finance_keywords":[]`)
	assert.Contains(t, string(data), `"deal_types":[]`)
}

func TestMissingEstimateCannotMakeCashDeal(t *testing.T) {
	res := Classify("Investor special, sold as-is", 50000, 0)
	assert.True(t, res.NeedsWork)
	assert.False(t, res.IsCashDeal)
	assert.Nil(t, res.DiscountPercentage)
}

func TestOwnerFinancePhraseVariants(t *testing.T) {
	descriptions := []string{
		"OWNER-FINANCING available to qualified buyers",
		"owner  financing offered",
		"Great terms: OwnerFinancing!",
		"owner/financing possible",
	}
	for _, desc := range descriptions {
		res := Classify(desc, 0, 0)
		assert.True(t, res.IsOwnerFinance, desc)
		assert.Equal(t, []string{"owner financing"}, res.OwnerFinanceKeywords, desc)
	}
}

func TestBroadPhrasesAreNotOwnerFinance(t *testing.T) {
	res := Classify("Flexible financing and terms available", 0, 0)
	assert.False(t, res.IsOwnerFinance)
	assert.Empty(t, res.OwnerFinanceKeywords)

	// still labeled for display
	require.NotNil(t, res.FinancingType)
	assert.Equal(t, FinancingCreative, *res.FinancingType)
}

func TestBothDealTypes(t *testing.T) {
	res := Classify("Seller financing available on this investor special", 60000, 100000)

	assert.True(t, res.IsOwnerFinance)
	assert.True(t, res.IsCashDeal)
	assert.Equal(t, []DealType{DealTypeOwnerFinance, DealTypeCashDeal}, res.DealTypes)
	assert.True(t, res.HasDealType(DealTypeCashDeal))
	require.NotNil(t, res.CashDealReason)
	assert.Equal(t, CashDealBoth, *res.CashDealReason)
}

func TestCustomDiscountRatio(t *testing.T) {
	c := New(nil, 0.7)
	assert.False(t, c.Classify("", 75000, 100000).IsCashDeal)
	assert.True(t, c.Classify("", 69999, 100000).IsCashDeal)

	// out of range ratios fall back to the default
	c = New(nil, 1.5)
	assert.True(t, c.Classify("", 79999, 100000).IsCashDeal)
}

func TestSetTablesSwapsKeywords(t *testing.T) {
	custom, err := ParseTables([]byte(`
version: "test-1"
owner_finance: [vendor finance]
negative:
  financing_term: '\b(vendor)[\s\-/_]*(finance)\b'
  list_term: '\b(vendor)[\s\-/_]*(finance)'
  negation_words: [no]
financing_types:
  - name: Vendor Finance
    patterns: ['\bvendor[\s\-/_]*finance\b']
needs_work: [knock down]
`))
	require.NoError(t, err)

	c := New(nil, DefaultDiscountRatio)
	assert.False(t, c.Classify("Vendor finance offered", 0, 0).IsOwnerFinance)

	c.SetTables(custom)
	res := c.Classify("Vendor-finance offered, knock down candidate", 0, 0)
	assert.True(t, res.IsOwnerFinance)
	assert.Equal(t, "Vendor Finance", res.FinancingDisplayLabel)
	assert.Equal(t, []string{"knock down"}, res.NeedsWorkKeywords)
	assert.Equal(t, "test-1", c.Tables().Version())
}

func TestNeedsWorkKeywordsMatchWholeWords(t *testing.T) {
	res := Classify("Kitchen has island and granite counters", 70000, 100000)
	assert.False(t, res.NeedsWork)
	assert.Empty(t, res.NeedsWorkKeywords)
	require.NotNil(t, res.CashDealReason)
	assert.Equal(t, CashDealDiscount, *res.CashDealReason)

	res = Classify("Sold as is, needs roof", 0, 0)
	assert.True(t, res.NeedsWork)
	assert.Contains(t, res.NeedsWorkKeywords, "as is")
}

func TestDiscountPercentageIsNotRounded(t *testing.T) {
	res := Classify("", 79999.99, 100000)

	assert.True(t, res.IsCashDeal)
	require.NotNil(t, res.DiscountPercentage)
	assert.Greater(t, *res.DiscountPercentage, 20.0)
	assert.InDelta(t, 20.00001, *res.DiscountPercentage, 1e-9)

	res = Classify("", 80000, 100000)
	assert.False(t, res.IsCashDeal)
	require.NotNil(t, res.DiscountPercentage)
	assert.Equal(t, 20.0, *res.DiscountPercentage)
}
