package settlement_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/repo"
	"github.com/noah-isme/datanexus/internal/settlement"
)

func serve(h http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req = req.WithContext(identity.WithAgency(req.Context(), agencyA))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestPurchaseHandlerReturnsOutcome(t *testing.T) {
	store := repo.NewMemory()
	seed(t, store, "Vision", 10, 20, 30)
	h := &settlement.Handler{Svc: newService(store, nil), Reader: store, Validate: validator.New()}

	rr := serve(h.Purchase, http.MethodPost, `{"category":"Vision"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data settlement.Outcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 3, body.Data.PurchasedCount)

	rr = serve(h.Purchase, http.MethodPost, `{"category":"Vision"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"noInventory":true`)

	rr = serve(h.ListPurchases, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total_items":3`)
}

func TestPurchaseHandlerValidationAndPersistence(t *testing.T) {
	store := repo.NewMemory()
	h := &settlement.Handler{Svc: newService(store, nil), Reader: store, Validate: validator.New()}

	rr := serve(h.Purchase, http.MethodPost, `{"category":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	store.FailNext = func(string) error { return errors.New("db down") }
	rr = serve(h.Purchase, http.MethodPost, `{"category":"Vision"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "STORE_UNAVAILABLE")
}

func TestCategoriesHandler(t *testing.T) {
	store := repo.NewMemory()
	seed(t, store, "Audio", 1, 2)
	seed(t, store, "Vision", 3)
	h := &settlement.Handler{Svc: newService(store, nil), Reader: store}

	rr := serve(h.Categories, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":[{"category":"Audio","unsold":2},{"category":"Vision","unsold":1}]}`, rr.Body.String())
}

func TestReadHandlersMapStoreFaults(t *testing.T) {
	store := repo.NewMemory()
	seed(t, store, "Vision", 1)
	h := &settlement.Handler{Svc: newService(store, nil), Reader: store}
	store.FailNext = func(op string) error {
		if op == "count unsold" || op == "list sold" {
			return errors.New("db down")
		}
		return nil
	}

	rr := serve(h.Categories, http.MethodGet, "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "STORE_UNAVAILABLE")

	rr = serve(h.ListPurchases, http.MethodGet, "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "STORE_UNAVAILABLE")
}
