// Package classify turns a listing's free text, asking price and estimate into
// deal flags. Every function here is pure: no I/O, no errors, and identical
// input always produces identical output.
package classify

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// DefaultDiscountRatio is the share of the estimate a price must stay under
// to count as a cash deal.
const DefaultDiscountRatio = 0.8

// DealType tags a listing for a downstream deal collection.
type DealType string

const (
	DealTypeOwnerFinance DealType = "owner_finance"
	DealTypeCashDeal     DealType = "cash_deal"
)

// CashDealReason says what qualified a cash deal.
type CashDealReason string

const (
	CashDealDiscount  CashDealReason = "discount"
	CashDealNeedsWork CashDealReason = "needs_work"
	CashDealBoth      CashDealReason = "both"
)

// Result holds every field the classifier derives for a listing.
type Result struct {
	IsOwnerFinance             bool            `json:"is_owner_finance"`
	OwnerFinanceKeywords       []string        `json:"owner_finance_keywords"`
	PrimaryOwnerFinanceKeyword *string         `json:"primary_owner_finance_keyword"`
	NegativeFinancing          *NegativeResult `json:"negative_financing,omitempty"`
	FinancingType              *FinancingType  `json:"financing_type"`
	AllFinancingTypes          []FinancingType `json:"all_financing_types"`
	FinancingDisplayLabel      string          `json:"financing_display_label"`
	IsCashDeal                 bool            `json:"is_cash_deal"`
	CashDealReason             *CashDealReason `json:"cash_deal_reason"`
	DiscountPercentage         *float64        `json:"discount_percentage"`
	EightyPercentOfEstimate    *float64        `json:"eighty_percent_of_estimate"`
	NeedsWork                  bool            `json:"needs_work"`
	NeedsWorkKeywords          []string        `json:"needs_work_keywords"`
	DealTypes                  []DealType      `json:"deal_types"`
	ShouldSave                 bool            `json:"should_save"`
}

// HasDealType reports whether dt is among the result's deal types.
func (r Result) HasDealType(dt DealType) bool {
	for _, d := range r.DealTypes {
		if d == dt {
			return true
		}
	}
	return false
}

// Classifier classifies listings against a swappable set of keyword tables.
type Classifier struct {
	tables atomic.Pointer[Tables]
	ratio  decimal.Decimal
}

// New creates a Classifier. A nil tables argument selects the embedded tables
// and a ratio outside (0, 1] selects DefaultDiscountRatio.
func New(tables *Tables, discountRatio float64) *Classifier {
	if tables == nil {
		tables = DefaultTables()
	}
	if discountRatio <= 0 || discountRatio > 1 {
		discountRatio = DefaultDiscountRatio
	}
	c := &Classifier{ratio: decimal.NewFromFloat(discountRatio)}
	c.tables.Store(tables)
	return c
}

// Tables returns the tables currently in use.
func (c *Classifier) Tables() *Tables {
	return c.tables.Load()
}

// SetTables swaps the tables used by subsequent calls.
func (c *Classifier) SetTables(t *Tables) {
	if t != nil {
		c.tables.Store(t)
	}
}

// Classify derives the deal fields for one listing. An empty description, or a
// price or estimate that is zero or absent, degrades to the empty defaults.
func (c *Classifier) Classify(description string, price, estimate float64) Result {
	t := c.tables.Load()

	of := t.MatchOwnerFinance(description)
	neg := t.DetectNegativeFinancing(description)
	fin := t.DetectFinancingType(description)
	needsWork := t.MatchNeedsWork(description)
	discount := EvaluateDiscount(price, estimate, c.ratio)

	res := Result{
		OwnerFinanceKeywords:       of.Keywords,
		PrimaryOwnerFinanceKeyword: of.Primary,
		FinancingType:              fin.FinancingType,
		AllFinancingTypes:          fin.AllTypes,
		FinancingDisplayLabel:      fin.DisplayLabel,
		NeedsWork:                  len(needsWork) > 0,
		NeedsWorkKeywords:          needsWork,
		DealTypes:                  []DealType{},
	}
	if neg.IsNegative {
		res.NegativeFinancing = &neg
	}

	if discount.Evaluable {
		pct, thr := discount.Percentage, discount.Threshold
		res.DiscountPercentage = &pct
		res.EightyPercentOfEstimate = &thr
	}

	// Needs-work alone never qualifies a cash deal.
	res.IsCashDeal = discount.Meets
	if res.IsCashDeal {
		reason := CashDealDiscount
		if res.NeedsWork {
			reason = CashDealBoth
		}
		res.CashDealReason = &reason
	}

	res.IsOwnerFinance = len(of.Keywords) > 0 && !neg.IsNegative

	if res.IsOwnerFinance {
		res.DealTypes = append(res.DealTypes, DealTypeOwnerFinance)
	}
	if res.IsCashDeal {
		res.DealTypes = append(res.DealTypes, DealTypeCashDeal)
	}
	res.ShouldSave = res.IsOwnerFinance || res.IsCashDeal
	return res
}

var (
	defaultOnce       sync.Once
	defaultClassifier *Classifier
)

// Default returns a shared Classifier over the embedded tables.
func Default() *Classifier {
	defaultOnce.Do(func() {
		defaultClassifier = New(nil, DefaultDiscountRatio)
	})
	return defaultClassifier
}

// Classify classifies with the shared default Classifier.
func Classify(description string, price, estimate float64) Result {
	return Default().Classify(description, price, estimate)
}
