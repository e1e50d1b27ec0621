package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	for _, name := range names {
		body, err := migrations.ReadFile("migrations/" + name)
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(name, ".sql"), name)
		require.Contains(t, string(body), "-- +goose Up", name)
		require.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestSchemaCarriesRankBackstop(t *testing.T) {
	body, err := migrations.ReadFile("migrations/00001_engine.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "vendors_active_priority_excl")
	require.Contains(t, string(body), "DEFERRABLE INITIALLY DEFERRED")
}

func TestClosingsCarryCashCollected(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.Contains(t, names, "00002_closing_cash.sql")

	body, err := migrations.ReadFile("migrations/00002_closing_cash.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "ADD COLUMN cash_collected")
}
