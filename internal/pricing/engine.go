package pricing

import "github.com/shopspring/decimal"

// DefaultUnitPrice is the per-item price of a batch in currency units.
const DefaultUnitPrice = 25.0

// Allocation is the payout split of one batch.
type Allocation struct {
	Total      float64
	Payouts    []float64
	EqualSplit bool
}

// Sum returns the sum of all payouts.
func (a Allocation) Sum() float64 {
	var sum float64
	for _, p := range a.Payouts {
		sum += p
	}
	return sum
}

// Allocate splits len(scores)*unitPrice across the items proportionally to
// their quality scores, or equally when every score is zero. Negative scores
// count as zero. The last payout absorbs the rounding residue so the payouts
// always add up to the batch total.
func Allocate(scores []float64, unitPrice float64) Allocation {
	n := len(scores)
	if n == 0 {
		return Allocation{Payouts: []float64{}}
	}
	total := decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromInt(int64(n)))

	weights := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i, q := range scores {
		w := decimal.Zero
		if q > 0 {
			w = decimal.NewFromFloat(q)
		}
		weights[i] = w
		sum = sum.Add(w)
	}

	shares := make([]decimal.Decimal, n)
	equal := sum.IsZero()
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		if equal {
			shares[i] = total.DivRound(decimal.NewFromInt(int64(n)), 12)
		} else {
			shares[i] = total.Mul(weights[i]).DivRound(sum, 12)
		}
		allocated = allocated.Add(shares[i])
	}
	shares[n-1] = total.Sub(allocated)

	payouts := make([]float64, n)
	for i, s := range shares {
		payouts[i] = s.InexactFloat64()
	}
	return Allocation{
		Total:      total.InexactFloat64(),
		Payouts:    payouts,
		EqualSplit: equal,
	}
}
