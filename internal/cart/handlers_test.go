package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/cart"
	"github.com/noah-isme/datanexus/internal/identity"
)

func router(h *cart.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(identity.NewResolver("", "").Middleware, identity.RequireAgency)
	r.Get("/cart", h.Get)
	r.Post("/cart/lines", h.AddLine)
	r.Delete("/cart/lines/{ref}", h.RemoveLine)
	r.Delete("/cart", h.Clear)
	return r
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(context.Background())
	req.Header.Set(identity.DefaultAgencyHeader, "agency-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCartHandlersFlow(t *testing.T) {
	svc, _ := newService()
	handler := router(&cart.Handler{Svc: svc, Validate: validator.New()})

	rr := do(t, handler, http.MethodPost, "/cart/lines", `{"category":"Vision"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, handler, http.MethodPost, "/cart/lines", `{"category":"Vision"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "DUPLICATE_CATEGORY")

	rr = do(t, handler, http.MethodPost, "/cart/lines", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, handler, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data cart.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data.Lines, 1)
	require.Equal(t, "agency-1", body.Data.AgencyID)

	rr = do(t, handler, http.MethodDelete, "/cart/lines/Vision", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, handler, http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
}
