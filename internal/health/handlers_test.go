package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/health"
	"github.com/noah-isme/datanexus/internal/repo"
)

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	handler := health.Handler{Probes: []health.Probe{
		{Name: "store", Target: repo.NewMemory(), Timeout: 50 * time.Millisecond},
		{Name: "redis", Target: health.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })},
	}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, map[string]string{"store": "ok", "redis": "ok"}, status)
}

func TestReadyFailure(t *testing.T) {
	handler := health.Handler{Probes: []health.Probe{
		{Name: "store", Target: health.PingFunc(func(context.Context) error { return errors.New("db down") })},
	}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "db down")
}

func TestReadyHonoursProbeTimeout(t *testing.T) {
	slow := health.PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	handler := health.Handler{Probes: []health.Probe{{Name: "redis", Target: slow, Timeout: 10 * time.Millisecond}}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReadyReportsDrainingWhileStoreHealthy(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	handler := health.Handler{Probes: []health.Probe{{Name: "store", Target: repo.NewMemory()}}}
	call := func() (int, map[string]string) {
		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	health.SetReady(false)
	code, body := call()
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, map[string]string{"server": "shutting down", "store": "ok"}, body)

	health.SetReady(true)
	code, body = call()
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"store": "ok"}, body)
}
