package classify

import "github.com/sirupsen/logrus"

// Stats aggregates a batch of classification results.
type Stats struct {
	Total            int                    `json:"total"`
	OwnerFinanceOnly int                    `json:"owner_finance_only"`
	CashDealOnly     int                    `json:"cash_deal_only"`
	Both             int                    `json:"both"`
	NeedsWork        int                    `json:"needs_work"`
	FilteredOut      int                    `json:"filtered_out"`
	NegativeVetoes   int                    `json:"negative_vetoes"`
	ByReason         map[CashDealReason]int `json:"by_reason"`
	ByFinancingType  map[FinancingType]int  `json:"by_financing_type"`
}

// NewStats returns an empty Stats ready for Add.
func NewStats() *Stats {
	return &Stats{
		ByReason:        make(map[CashDealReason]int),
		ByFinancingType: make(map[FinancingType]int),
	}
}

// CalculateStats folds results into a Stats.
func CalculateStats(results []Result) *Stats {
	s := NewStats()
	for _, r := range results {
		s.Add(r)
	}
	return s
}

// Add counts one result.
func (s *Stats) Add(r Result) {
	s.Total++
	switch {
	case r.IsOwnerFinance && r.IsCashDeal:
		s.Both++
	case r.IsOwnerFinance:
		s.OwnerFinanceOnly++
	case r.IsCashDeal:
		s.CashDealOnly++
	default:
		s.FilteredOut++
	}
	if r.NeedsWork {
		s.NeedsWork++
	}
	if r.NegativeFinancing != nil && len(r.OwnerFinanceKeywords) > 0 {
		s.NegativeVetoes++
	}
	if r.CashDealReason != nil {
		s.ByReason[*r.CashDealReason]++
	}
	if r.FinancingType != nil {
		s.ByFinancingType[*r.FinancingType]++
	}
}

// Saved is the number of results that qualified for at least one deal collection.
func (s *Stats) Saved() int {
	return s.Total - s.FilteredOut
}

// Log writes the counts as one structured log line.
func (s *Stats) Log(label string) {
	fields := logrus.Fields{
		"batch":              label,
		"total":              s.Total,
		"owner_finance_only": s.OwnerFinanceOnly,
		"cash_deal_only":     s.CashDealOnly,
		"both":               s.Both,
		"needs_work":         s.NeedsWork,
		"filtered_out":       s.FilteredOut,
		"negative_vetoes":    s.NegativeVetoes,
	}
	for reason, n := range s.ByReason {
		fields["reason_"+string(reason)] = n
	}
	logrus.WithFields(fields).Info("classification stats")
}
