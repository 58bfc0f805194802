package app_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/app"
	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/config"
	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/repo"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreDriver:              config.StoreMemory,
		SettlementUnitPrice:      25,
		SettlementBatchSize:      5,
		SettlementReservationTTL: 30 * time.Second,
		SettlementMaxAttempts:    3,
		EarningsContributorShare: 0.8,
		EarningsWindowDays:       30,
		EarningsCacheTTL:         time.Minute,
		CartMaxRetries:           5,
		IdempotencyTTL:           time.Hour,
		CheckoutLockTTL:          5 * time.Second,
		LockRetryBackoff:         5 * time.Millisecond,
		RateLimitPurchase:        "100-M",
		MetricsEnabled:           true,
		MetricsNamespace:         "datanexus_test",
		MailBreakerMinReq:        5,
		MailBreakerRatio:         0.5,
		MailBreakerOpenFor:       time.Second,
	}
}

type harness struct {
	t   *testing.T
	srv *httptest.Server
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	handler, err := app.NewRouter(app.Dependencies{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Store:    repo.NewMemory(),
		Redis:    rdb,
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv}
}

func (h *harness) do(method, path, body string, headers map[string]string) (int, string) {
	h.t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, string(data)
}

func agency(id string) map[string]string {
	return map[string]string{identity.DefaultAgencyHeader: id}
}

func contributor(id string) map[string]string {
	return map[string]string{identity.DefaultContributorHeader: id}
}

func TestMarketplaceFlow(t *testing.T) {
	h := newHarness(t, nil)

	for _, s := range []struct {
		owner string
		score float64
	}{{"alice", 1}, {"alice", 2}, {"alice", 3}, {"bob", 2}, {"bob", 2}} {
		code, body := h.do(http.MethodPost, "/api/v1/submissions",
			fmt.Sprintf(`{"category":"Vision","title":"set","qualityScore":%v}`, s.score), contributor(s.owner))
		require.Equal(t, http.StatusCreated, code, body)
	}

	code, body := h.do(http.MethodGet, "/api/v1/categories", "", agency("acme"))
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"Vision"`)

	code, _ = h.do(http.MethodPost, "/api/v1/cart/lines", `{"category":"Vision"}`, agency("acme"))
	require.Equal(t, http.StatusCreated, code)
	code, _ = h.do(http.MethodPost, "/api/v1/cart/lines", `{"category":"Audio"}`, agency("acme"))
	require.Equal(t, http.StatusCreated, code)
	code, _ = h.do(http.MethodPost, "/api/v1/cart/lines", `{"category":" Vision"}`, agency("acme"))
	require.Equal(t, http.StatusConflict, code)

	code, body = h.do(http.MethodPost, "/api/v1/checkout", "", agency("acme"))
	require.Equal(t, http.StatusOK, code, body)
	var checkout struct {
		Data struct {
			TotalPurchased int      `json:"totalPurchased"`
			TotalCost      float64  `json:"totalCost"`
			NoInventory    []string `json:"noInventory"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &checkout))
	require.Equal(t, 5, checkout.Data.TotalPurchased)
	require.InDelta(t, 125, checkout.Data.TotalCost, 1e-9)
	require.Equal(t, []string{"Audio"}, checkout.Data.NoInventory)

	code, body = h.do(http.MethodGet, "/api/v1/cart", "", agency("acme"))
	require.Equal(t, http.StatusOK, code)
	require.NotContains(t, body, `"Vision"`)
	require.Contains(t, body, `"Audio"`)

	code, body = h.do(http.MethodGet, "/api/v1/agency/purchases", "", agency("acme"))
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"total_items":5`)

	code, body = h.do(http.MethodGet, "/api/v1/earnings", "", contributor("alice"))
	require.Equal(t, http.StatusOK, code)
	var earn struct {
		Data struct {
			SoldCount     int     `json:"soldCount"`
			GrossEarnings float64 `json:"grossEarnings"`
			NetEarnings   float64 `json:"netEarnings"`
			Series        []any   `json:"series"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &earn))
	require.Equal(t, 3, earn.Data.SoldCount)
	require.InDelta(t, 75, earn.Data.GrossEarnings, 1e-9)
	require.InDelta(t, 60, earn.Data.NetEarnings, 1e-9)
	require.Len(t, earn.Data.Series, 30)

	code, body = h.do(http.MethodPost, "/api/v1/purchases", `{"category":"Vision"}`, agency("globex"))
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"purchasedCount":0`)
}

func TestIdentityRequired(t *testing.T) {
	h := newHarness(t, nil)
	code, _ := h.do(http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = h.do(http.MethodGet, "/api/v1/earnings", "", agency("acme"))
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestIdempotentCartWrite(t *testing.T) {
	h := newHarness(t, nil)
	headers := agency("acme")
	headers[common.IdempotencyHeader] = "key-1"

	code, _ := h.do(http.MethodPost, "/api/v1/cart/lines", `{"category":"Vision"}`, headers)
	require.Equal(t, http.StatusCreated, code)
	code, body := h.do(http.MethodPost, "/api/v1/cart/lines", `{"category":"Vision"}`, headers)
	require.Equal(t, http.StatusConflict, code)
	require.Contains(t, body, "IDEMPOTENT_REPLAY")
}

func TestPurchaseRateLimited(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.RateLimitPurchase = "2-M" })
	for i := 0; i < 2; i++ {
		code, _ := h.do(http.MethodPost, "/api/v1/purchases", `{"category":"Vision"}`, agency("acme"))
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := h.do(http.MethodPost, "/api/v1/purchases", `{"category":"Vision"}`, agency("acme"))
	require.Equal(t, http.StatusTooManyRequests, code)

	code, _ = h.do(http.MethodPost, "/api/v1/purchases", `{"category":"Vision"}`, agency("other"))
	require.Equal(t, http.StatusOK, code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	code, body := h.do(http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"redis":"ok"`)

	code, body = h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "datanexus_test_http_requests_total")
}

func TestOversizeBodyRejected(t *testing.T) {
	h := newHarness(t, nil)
	big := fmt.Sprintf(`{"category":"Vision","title":%q,"qualityScore":1}`, strings.Repeat("x", 70<<10))
	code, body := h.do(http.MethodPost, "/api/v1/submissions", big, contributor("alice"))
	require.Equal(t, http.StatusRequestEntityTooLarge, code)
	require.Contains(t, body, "PAYLOAD_TOO_LARGE")
}
