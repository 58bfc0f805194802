package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/datanexus/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STORE_DRIVER":     "memory",
		"DATANEXUS_CONFIG": "",
		"PORT":             "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, config.StoreMemory, cfg.StoreDriver)
}

func TestLoadSettlementOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STORE_DRIVER":               "memory",
		"DATANEXUS_CONFIG":           "",
		"SETTLEMENT_UNIT_PRICE":      "40",
		"SETTLEMENT_BATCH_SIZE":      "3",
		"SETTLEMENT_RESERVATION_TTL": "2m",
		"EARNINGS_CONTRIBUTOR_SHARE": "0.7",
		"CORS_ALLOWED_ORIGINS":       "https://a.test, https://b.test",
	})
	require.NoError(t, err)
	require.InDelta(t, 40, cfg.SettlementUnitPrice, 1e-9)
	require.Equal(t, 3, cfg.SettlementBatchSize)
	require.Equal(t, 2*time.Minute, cfg.SettlementReservationTTL)
	require.InDelta(t, 0.7, cfg.EarningsContributorShare, 1e-9)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSAllowedOrigins)
}

func TestLoadRequiresDatabaseForPostgres(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"STORE_DRIVER":     "postgres",
		"DATABASE_URL":     "",
		"DATANEXUS_CONFIG": "",
	})
	require.Error(t, err)
}

func TestLoadRejectsBadShare(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"STORE_DRIVER":               "memory",
		"DATANEXUS_CONFIG":           "",
		"EARNINGS_CONTRIBUTOR_SHARE": "1.5",
	})
	require.Error(t, err)
}

func TestLoadYAMLFileUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datanexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("STORE_DRIVER: memory\nSETTLEMENT_BATCH_SIZE: 7\nSETTLEMENT_MAX_ATTEMPTS: 4\n"), 0o600))

	cfg, err := config.LoadForTests(map[string]string{
		"DATANEXUS_CONFIG":        path,
		"STORE_DRIVER":            "",
		"SETTLEMENT_BATCH_SIZE":   "",
		"SETTLEMENT_MAX_ATTEMPTS": "6",
	})
	require.NoError(t, err)
	require.Equal(t, config.StoreMemory, cfg.StoreDriver)
	require.Equal(t, 7, cfg.SettlementBatchSize)
	require.Equal(t, 6, cfg.SettlementMaxAttempts)
}
