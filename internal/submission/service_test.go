package submission_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/repo"
	"github.com/noah-isme/datanexus/internal/submission"
)

var (
	now   = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	alice = market.MustContributorID("alice")
	bob   = market.MustContributorID("bob")
)

func newService() (*submission.Service, *repo.Memory) {
	store := repo.NewMemory()
	bus := &events.Bus{Store: store}
	return &submission.Service{Store: store, Events: bus, Now: func() time.Time { return now }}, store
}

func TestCreateAndList(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	sub, err := svc.Create(ctx, alice, submission.Input{Category: " Vision ", Title: "Street signs", QualityScore: 7.5})
	require.NoError(t, err)
	require.Equal(t, "Vision", sub.Category)
	require.False(t, sub.Sold())
	require.Equal(t, now, sub.CreatedAt)

	_, err = svc.Create(ctx, bob, submission.Input{Category: "Audio", QualityScore: 1})
	require.NoError(t, err)

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)

	recorded := store.Events()
	require.Len(t, recorded, 2)
	require.Equal(t, events.TopicSubmissionCreated, recorded[0].Topic)
}

func TestCreateRejectsNegativeQuality(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), alice, submission.Input{Category: "Vision", QualityScore: -1})
	require.ErrorIs(t, err, market.ErrInvalidInput)
}

func TestGetAndDeleteVerifyOwnership(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	sub, err := svc.Create(ctx, alice, submission.Input{Category: "Vision", QualityScore: 1})
	require.NoError(t, err)

	_, err = svc.Get(ctx, bob, sub.ID)
	require.ErrorIs(t, err, market.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, bob, sub.ID), market.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, alice, "missing"), market.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, alice, sub.ID))
	_, err = store.GetSubmission(ctx, sub.ID)
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestDeleteSoldOrReservedSubmission(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	sold, err := svc.Create(ctx, alice, submission.Input{Category: "Vision", QualityScore: 1})
	require.NoError(t, err)
	held, err := svc.Create(ctx, alice, submission.Input{Category: "Vision", QualityScore: 1})
	require.NoError(t, err)

	require.NoError(t, store.Reserve(ctx, market.Reservation{SubmissionID: sold.ID, SettlementID: "s1", Until: now.Add(time.Minute), Now: now}))
	require.NoError(t, store.CommitSale(ctx, market.Sale{SettlementID: "s1", Agency: market.MustAgencyID("ag"), SoldAt: now, Items: []market.SaleItem{{SubmissionID: sold.ID, Payout: 25}}}))
	require.ErrorIs(t, svc.Delete(ctx, alice, sold.ID), market.ErrAlreadySold)

	require.NoError(t, store.Reserve(ctx, market.Reservation{SubmissionID: held.ID, SettlementID: "s2", Until: now.Add(time.Minute), Now: now}))
	require.ErrorIs(t, svc.Delete(ctx, alice, held.ID), market.ErrAlreadyClaimed)
}

func TestHandlers(t *testing.T) {
	svc, _ := newService()
	h := &submission.Handler{Svc: svc, Validate: validator.New()}
	r := chi.NewRouter()
	r.Use(identity.NewResolver("", "").Middleware, identity.RequireContributor)
	r.Post("/submissions", h.Create)
	r.Get("/submissions", h.List)
	r.Get("/submissions/{id}", h.Get)
	r.Delete("/submissions/{id}", h.Delete)

	do := func(method, path, body, who string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(identity.DefaultContributorHeader, who)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/submissions", `{"category":"Vision","qualityScore":3,"blobUrl":"https://blobs.example/x.csv"}`, "alice")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(http.MethodPost, "/submissions", `{"category":"Vision"}`, "alice")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/submissions", `{"category":"Vision","qualityScore":-2}`, "alice")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodGet, "/submissions", "", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total_items":1`)

	rr = do(http.MethodGet, "/submissions", "", "bob")
	require.Contains(t, rr.Body.String(), `"total_items":0`)

	rr = do(http.MethodDelete, "/submissions/nope", "", "alice")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
