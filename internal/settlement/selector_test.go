package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/market"
)

func TestSelectFiltersAndCaps(t *testing.T) {
	sold := market.MustAgencyID("someone")
	candidates := []market.Submission{
		{ID: "1", Category: "Vision"},
		{ID: "2", Category: "Audio"},
		{ID: "3", Category: "Vision", SoldTo: &sold},
		{ID: "4", Category: "Vision"},
		{ID: "5", Category: "Vision"},
	}
	batch := Select("Vision", candidates, 2)
	require.False(t, batch.NoInventory)
	require.Len(t, batch.Items, 2)
	require.Equal(t, "1", batch.Items[0].ID)
	require.Equal(t, "4", batch.Items[1].ID)

	again := Select("Vision", candidates, 2)
	require.Equal(t, batch.Items, again.Items)
}

func TestSelectDefaultsAndNoInventory(t *testing.T) {
	candidates := make([]market.Submission, 8)
	for i := range candidates {
		candidates[i] = market.Submission{ID: string(rune('a' + i)), Category: "Text"}
	}
	require.Len(t, Select("Text", candidates, 0).Items, DefaultBatchSize)

	empty := Select("Missing", candidates, 5)
	require.True(t, empty.NoInventory)
	require.Empty(t, empty.Items)
}
