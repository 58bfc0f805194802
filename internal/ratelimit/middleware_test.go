package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestMiddlewareEnforcesLimitWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := ratelimit.NewStore(client, "")
	require.NoError(t, err)
	lim, err := ratelimit.New(store, "1-M")
	require.NoError(t, err)

	h := ratelimit.Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/purchases", nil)
	rr1 := httptest.NewRecorder()
	h.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.Contains(t, rr2.Body.String(), "RATE_LIMITED")
}

func TestMiddlewareKeysByAgency(t *testing.T) {
	store, err := ratelimit.NewStore(nil, "test")
	require.NoError(t, err)
	lim, err := ratelimit.New(store, "1-H")
	require.NoError(t, err)

	h := identity.NewResolver("", "").Middleware(ratelimit.Handler{Limiter: lim}.Middleware(okHandler()))

	call := func(agency string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		req.Header.Set(identity.DefaultAgencyHeader, agency)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, call("acme"))
	require.Equal(t, http.StatusTooManyRequests, call("acme"))
	require.Equal(t, http.StatusOK, call("globex"))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store, err := ratelimit.NewStore(client, "")
	require.NoError(t, err)
	mr.Close()
	lim, err := ratelimit.New(store, "1-S")
	require.NoError(t, err)

	called := false
	h := ratelimit.Handler{Limiter: lim, OnError: func(error) { called = true }}.Middleware(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestNewRejectsBadRate(t *testing.T) {
	store, err := ratelimit.NewStore(nil, "")
	require.NoError(t, err)
	_, err = ratelimit.New(store, "lots")
	require.Error(t, err)
}
