package profile_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/profile"
	"github.com/noah-isme/datanexus/internal/repo"
)

func router(store *repo.Memory) http.Handler {
	h := &profile.Handler{Store: store, Validate: validator.New(), Now: func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}}
	r := chi.NewRouter()
	r.Use(identity.NewResolver("", "").Middleware)
	r.With(identity.RequireAgency).Get("/agency/profile", h.GetAgency)
	r.With(identity.RequireAgency).Put("/agency/profile", h.PutAgency)
	r.With(identity.RequireContributor).Get("/contributor/profile", h.GetContributor)
	r.With(identity.RequireContributor).Put("/contributor/profile", h.PutContributor)
	return r
}

func call(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAgencyProfileRoundTrip(t *testing.T) {
	h := router(repo.NewMemory())
	agency := map[string]string{identity.DefaultAgencyHeader: "acme"}

	rr := call(h, http.MethodGet, "/agency/profile", "", agency)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"id":"acme"`)

	rr = call(h, http.MethodPut, "/agency/profile", `{"name":"Acme Labs","contactEmail":"ops@acme.test"}`, agency)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(h, http.MethodGet, "/agency/profile", "", agency)
	var body struct {
		Data struct {
			Name         string `json:"name"`
			ContactEmail string `json:"contactEmail"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Acme Labs", body.Data.Name)
	require.Equal(t, "ops@acme.test", body.Data.ContactEmail)
}

func TestAgencyProfileValidation(t *testing.T) {
	h := router(repo.NewMemory())
	rr := call(h, http.MethodPut, "/agency/profile", `{"contactEmail":"nope"}`, map[string]string{identity.DefaultAgencyHeader: "acme"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(h, http.MethodGet, "/agency/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestContributorEmail(t *testing.T) {
	store := repo.NewMemory()
	h := router(store)
	who := map[string]string{identity.DefaultContributorHeader: "alice"}

	rr := call(h, http.MethodPut, "/contributor/profile", `{"email":"alice@example.test"}`, who)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(h, http.MethodGet, "/contributor/profile", "", who)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "alice@example.test")

	rr = call(h, http.MethodPut, "/contributor/profile", `{}`, who)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
