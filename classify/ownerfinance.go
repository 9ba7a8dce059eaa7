package classify

// OwnerFinanceMatch holds the positive phrases found in a description.
type OwnerFinanceMatch struct {
	Keywords []string
	Primary  *string
}

// MatchOwnerFinance records every positive phrase that appears, in table order.
// The first one becomes the primary keyword.
func (t *Tables) MatchOwnerFinance(description string) OwnerFinanceMatch {
	m := OwnerFinanceMatch{Keywords: []string{}}
	if description == "" {
		return m
	}
	for _, p := range t.ownerFinance {
		if p.re.MatchString(description) {
			m.Keywords = append(m.Keywords, p.keyword)
		}
	}
	if len(m.Keywords) > 0 {
		primary := m.Keywords[0]
		m.Primary = &primary
	}
	return m
}
