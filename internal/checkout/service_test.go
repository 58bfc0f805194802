package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/cart"
	"github.com/noah-isme/datanexus/internal/checkout"
	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/lock"
	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/repo"
	"github.com/noah-isme/datanexus/internal/settlement"
)

var (
	now    = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	agency = market.MustAgencyID("agency-1")
)

type fixture struct {
	store *repo.Memory
	carts *cart.Service
	svc   *checkout.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := repo.NewMemory()
	carts := &cart.Service{Store: store, Now: func() time.Time { return now }}
	settle := &settlement.Service{Store: store, Config: settlement.DefaultConfig(), Now: func() time.Time { return now }}
	return fixture{store: store, carts: carts, svc: &checkout.Service{Carts: carts, Settle: settle}}
}

func (f fixture) seed(t *testing.T, category string, scores ...float64) {
	t.Helper()
	for i, q := range scores {
		_, err := f.store.InsertSubmission(context.Background(), market.Submission{
			ID:           fmt.Sprintf("%s-%d", category, i),
			OwnerID:      market.MustContributorID("owner"),
			Category:     category,
			QualityScore: q,
			CreatedAt:    now.Add(-time.Duration(len(scores)-i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func (f fixture) add(t *testing.T, categories ...string) {
	t.Helper()
	for _, c := range categories {
		_, err := f.carts.Add(context.Background(), agency, c)
		require.NoError(t, err)
	}
}

func TestCheckoutReportsNoInventoryLines(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Vision", 10, 20, 30)
	f.add(t, "Vision", "NoStock")

	summary, err := f.svc.Checkout(context.Background(), agency)
	require.NoError(t, err)
	require.Equal(t, 3, summary.TotalPurchased)
	require.InDelta(t, 75.0, summary.TotalCost, 1e-9)
	require.Equal(t, []string{"NoStock"}, summary.NoInventory)
	require.Empty(t, summary.Failed)
	require.Len(t, summary.Lines, 2)
	require.Equal(t, checkout.StatusPurchased, summary.Lines[0].Status)
	require.Equal(t, checkout.StatusNoInventory, summary.Lines[1].Status)
	require.Contains(t, summary.Note, "NoStock")

	c, err := f.carts.Get(context.Background(), agency)
	require.NoError(t, err)
	require.Equal(t, []string{"NoStock"}, c.Categories())
}

func TestCheckoutAccumulatesAcrossCategories(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Vision", 1, 1, 1, 1, 1, 1)
	f.seed(t, "Audio", 0, 0)
	f.add(t, "Vision", "Audio")

	summary, err := f.svc.Checkout(context.Background(), agency)
	require.NoError(t, err)
	require.Equal(t, 7, summary.TotalPurchased)
	require.InDelta(t, 175.0, summary.TotalCost, 1e-9)

	c, err := f.carts.Get(context.Background(), agency)
	require.NoError(t, err)
	require.Empty(t, c.Lines)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	summary, err := f.svc.Checkout(context.Background(), agency)
	require.NoError(t, err)
	require.Zero(t, summary.TotalPurchased)
	require.Equal(t, "cart is empty", summary.Note)
}

// failingCategory fails settlement for one category only.
type failingCategory struct {
	inner    checkout.Purchaser
	category string
}

func (f failingCategory) Purchase(ctx context.Context, category string, agency market.AgencyID) (settlement.Outcome, error) {
	if category == f.category {
		return settlement.Outcome{}, market.Persistence("commit sale", errors.New("timeout"))
	}
	return f.inner.Purchase(ctx, category, agency)
}

func TestCheckoutLineFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Vision", 5)
	f.seed(t, "Audio", 5)
	f.add(t, "Audio", "Vision")
	f.svc.Settle = failingCategory{inner: f.svc.Settle, category: "Audio"}

	summary, err := f.svc.Checkout(context.Background(), agency)
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalPurchased)
	require.Equal(t, []string{"Audio"}, summary.Failed)
	require.Equal(t, "STORE_UNAVAILABLE", summary.Lines[0].ErrorCode)

	c, err := f.carts.Get(context.Background(), agency)
	require.NoError(t, err)
	require.Equal(t, []string{"Audio"}, c.Categories())
}

func TestConcurrentCheckoutsConsumeCartOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Vision", 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	f.add(t, "Vision")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.svc.Lock = lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond}

	var wg sync.WaitGroup
	results := make([]checkout.Summary, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.svc.Checkout(context.Background(), agency)
			if err != nil {
				t.Errorf("checkout: %v", err)
			}
			results[i] = s
		}(i)
	}
	wg.Wait()
	require.Equal(t, 5, results[0].TotalPurchased+results[1].TotalPurchased)
}

func TestCheckoutHandler(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Vision", 1)
	f.add(t, "Vision", "NoStock")
	h := &checkout.Handler{Svc: f.svc}

	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req = req.WithContext(identity.WithAgency(req.Context(), agency))
	rr := httptest.NewRecorder()
	h.Checkout(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"noInventory":["NoStock"]`)
	require.Contains(t, rr.Body.String(), `"totalPurchased":1`)

	rr = httptest.NewRecorder()
	h.Checkout(rr, httptest.NewRequest(http.MethodPost, "/checkout", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
