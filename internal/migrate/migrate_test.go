package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escra/internal/db"
	"escra/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	latest, err := migrate.Latest()
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	ctx := context.Background()
	v1, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v1)

	v2, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	for _, table := range []string{
		"contracts", "signature_requests", "documents", "events", "id_sequences",
		"actor_roles", "contract_tasks", "contract_comments",
	} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}
