package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("datanexus", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	ctx := obs.WithRoutePattern(req.Context(), "/api/v1/checkout")
	req = req.WithContext(identity.WithAgency(ctx, market.MustAgencyID("agency-1")))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204", obs.ActorAnonymous)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/checkout", "204", obs.ActorAgency)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "204", obs.ActorAnonymous)))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestRequestLoggerIncludesIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.RequestLogger{Logger: obs.NewLoggerTo(&buf, "json")}
	handler := logger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req = req.WithContext(identity.WithAgency(req.Context(), market.MustAgencyID("agency-1")))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "agency-1", entry["agency_id"])
	require.EqualValues(t, http.StatusAccepted, entry["status"])
	require.NotContains(t, entry, "contributor_id")
}

func TestDomainMetricsObserveSettlement(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("datanexus", registry)

	obs.ObserveSettlement("sold", "Vision", 3, 75, 4)
	obs.ObserveSettlement("no_inventory", "Audio", 0, 0, 1)

	require.Equal(t, 1.0, testutil.ToFloat64(obs.SettlementsTotal.WithLabelValues("sold")))
	require.Equal(t, 3.0, testutil.ToFloat64(obs.ItemsSoldTotal.WithLabelValues("Vision")))
	require.Equal(t, 75.0, testutil.ToFloat64(obs.SettledValueTotal.WithLabelValues("Vision")))
	require.Equal(t, 0.0, testutil.ToFloat64(obs.ItemsSoldTotal.WithLabelValues("Audio")))
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 25.5, 100}, obs.ParseBucketsCSV(" 5, 25.5,,abc,-1,100"))
	require.Nil(t, obs.ParseBucketsCSV(""))
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("datanexus", nil, registry)
	second := obs.NewHTTPMetrics("datanexus", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}
