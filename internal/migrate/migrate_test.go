package migrate

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/libris/migrations"
)

func TestEmbeddedMigrations_OrderedAndAnnotated(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_accounts.sql", "00002_catalog.sql", "00003_lending.sql", "00004_community.sql"}, names)
	require.True(t, sort.StringsAreSorted(names))

	for _, n := range names {
		b, err := fs.ReadFile(migrations.FS, n)
		require.NoError(t, err)
		src := string(b)
		require.Contains(t, src, "-- +goose Up", n)
		require.Contains(t, src, "-- +goose Down", n)
	}
}

func TestLendingSchema_GuardsInvariants(t *testing.T) {
	t.Parallel()

	catalog, err := fs.ReadFile(migrations.FS, "00002_catalog.sql")
	require.NoError(t, err)
	require.Contains(t, strings.ToLower(string(catalog)), "available_copies <= total_copies")

	lending, err := fs.ReadFile(migrations.FS, "00003_lending.sql")
	require.NoError(t, err)
	s := string(lending)
	require.Contains(t, s, "borrow_records_active_uniq")
	require.Contains(t, s, "WHERE returned_at IS NULL")
	require.Contains(t, s, "UNIQUE (user_id, book_id)")
}

func TestCommunitySchema_ProfilesFollowUsers(t *testing.T) {
	t.Parallel()

	b, err := fs.ReadFile(migrations.FS, "00004_community.sql")
	require.NoError(t, err)
	s := string(b)
	require.Contains(t, s, "user_id       uuid PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE")
	require.Contains(t, s, "REFERENCES users (id) ON DELETE SET NULL")
}
