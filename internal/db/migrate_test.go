package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURLRewritesPostgresScheme(t *testing.T) {
	require.Equal(t, "pgx5://u:p@host:5432/db?sslmode=disable", driverURL("postgres://u:p@host:5432/db?sslmode=disable"))
	require.Equal(t, "pgx5://host/db", driverURL("postgresql://host/db"))
	require.Equal(t, "pgx5://host/db", driverURL("pgx5://host/db"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
