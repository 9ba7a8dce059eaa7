package classify

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount is the outcome of comparing an asking price with an estimate.
type Discount struct {
	Evaluable  bool
	Meets      bool
	Percentage float64
	Threshold  float64
}

// EvaluateDiscount checks price < estimate*ratio using exact decimal arithmetic.
// Percentage is left unrounded so it always agrees with Meets.
// Both numbers must be positive and finite, otherwise nothing can be evaluated.
func EvaluateDiscount(price, estimate float64, ratio decimal.Decimal) Discount {
	if !usable(price) || !usable(estimate) {
		return Discount{}
	}
	p := decimal.NewFromFloat(price)
	e := decimal.NewFromFloat(estimate)
	threshold := e.Mul(ratio)

	pct, _ := e.Sub(p).Div(e).Mul(hundred).Float64()
	thr, _ := threshold.Round(2).Float64()
	return Discount{
		Evaluable:  true,
		Meets:      p.LessThan(threshold),
		Percentage: pct,
		Threshold:  thr,
	}
}

func usable(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
