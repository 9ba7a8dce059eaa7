package classify

import "fmt"

// FinancingType is a named financing category from the keyword tables.
type FinancingType string

const (
	FinancingOwnerFinance    FinancingType = "Owner Finance"
	FinancingSellerFinance   FinancingType = "Seller Finance"
	FinancingRentToOwn       FinancingType = "Rent to Own"
	FinancingContractForDeed FinancingType = "Contract for Deed"
	FinancingAssumableLoan   FinancingType = "Assumable Loan"
	FinancingCreative        FinancingType = "Creative Financing"
)

// UnknownFinancingLabel is the display label when no category matched.
const UnknownFinancingLabel = "Unknown"

// FinancingTypeResult lists every matched category in priority order.
type FinancingTypeResult struct {
	FinancingType *FinancingType  `json:"financing_type"`
	AllTypes      []FinancingType `json:"all_types"`
	DisplayLabel  string          `json:"display_label"`
}

// DetectFinancingType matches the description against every category.
// It is independent of the owner-finance verdict.
func (t *Tables) DetectFinancingType(description string) FinancingTypeResult {
	res := FinancingTypeResult{AllTypes: []FinancingType{}, DisplayLabel: UnknownFinancingLabel}
	if description == "" {
		return res
	}
	for _, cat := range t.financingTypes {
		for _, re := range cat.patterns {
			if re.MatchString(description) {
				res.AllTypes = append(res.AllTypes, cat.name)
				break
			}
		}
	}
	if len(res.AllTypes) == 0 {
		return res
	}
	primary := res.AllTypes[0]
	res.FinancingType = &primary
	res.DisplayLabel = displayLabel(res.AllTypes)
	return res
}

func displayLabel(types []FinancingType) string {
	switch len(types) {
	case 0:
		return UnknownFinancingLabel
	case 1:
		return string(types[0])
	default:
		return fmt.Sprintf("%s (+%d more)", types[0], len(types)-1)
	}
}
