package settlement

import "github.com/noah-isme/datanexus/internal/market"

// DefaultBatchSize is the maximum number of submissions sold in one settlement.
const DefaultBatchSize = 5

// Batch is the result of a selection. NoInventory is set when nothing was
// selectable; it is an informational outcome, not an error.
type Batch struct {
	Category    string
	Items       []market.Submission
	NoInventory bool
}

// Scores returns the quality scores of the batch in selection order.
func (b Batch) Scores() []float64 {
	out := make([]float64, len(b.Items))
	for i, item := range b.Items {
		out[i] = item.QualityScore
	}
	return out
}

// Select keeps unsold candidates of category in their given order and caps the
// result at k (DefaultBatchSize when k <= 0). Candidates are expected in store
// order so repeated calls on the same snapshot yield the same batch.
func Select(category string, candidates []market.Submission, k int) Batch {
	if k <= 0 {
		k = DefaultBatchSize
	}
	batch := Batch{Category: category, Items: make([]market.Submission, 0, k)}
	for _, sub := range candidates {
		if len(batch.Items) == k {
			break
		}
		if sub.Sold() || sub.Category != category {
			continue
		}
		batch.Items = append(batch.Items, sub)
	}
	batch.NoInventory = len(batch.Items) == 0
	return batch
}
