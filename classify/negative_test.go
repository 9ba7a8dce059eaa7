package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectNegativeFinancing(t *testing.T) {
	tables := DefaultTables()

	tests := []struct {
		name        string
		description string
		negative    bool
		reason      string
	}{
		{"empty", "   ", false, reasonNoDescription},
		{"direct negation", "Great house. No owner financing.", true, reasonDirectNegation},
		{"hyphenated term", "not owner-financed, sorry", true, reasonDirectNegation},
		{"list negation", "NO Wholesale, Assignments or Seller Finance Offers will be accepted", true, reasonListNegation},
		{"rejection phrase", "Seller financing will not be considered at this time", true, reasonRejection},
		{"cash only", "Owner carry possible. Cash buyers only please", true, reasonCashOnly},
		{"conventional only", "Conventional financing only", true, reasonCashOnly},
		{"sentence boundary", "No issues. Owner financing available", false, reasonClean},
		{"far negation", "No HOA and a huge yard with room for a pool. Owner financing available", false, reasonClean},
		{"positive phrase with no", "No bank needed with owner financing", false, reasonClean},
		{"clean", "Owner financing available with 10% down", false, reasonClean},
		{"rejection in next sentence", "Owner financing available. Pets not accepted.", false, reasonClean},
		{"rejection after comma", "Owner financing, not available to investors", true, reasonRejection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tables.DetectNegativeFinancing(tt.description)
			assert.Equal(t, tt.negative, res.IsNegative)
			assert.Equal(t, tt.reason, res.Reason)
			if tt.negative {
				assert.NotEmpty(t, res.MatchedPattern)
				assert.Equal(t, ConfidenceHigh, res.Confidence)
			}
		})
	}
}

func TestNoBankNeededCountsAsOwnerFinance(t *testing.T) {
	res := Classify("No bank needed with owner financing", 0, 0)
	assert.True(t, res.IsOwnerFinance)
	assert.Equal(t, []string{"owner financing", "no bank needed"}, res.OwnerFinanceKeywords)
}
