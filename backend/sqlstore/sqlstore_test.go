package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/backend/backendtest"
	"github.com/hupe1980/metastore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(context.Background(), filepath.Join(t.TempDir(), "metastore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_Suite(t *testing.T) {
	backendtest.RunSuite(t, func(t *testing.T) backend.Backend {
		return openTestBackend(t)
	})
}

func TestBackend_InMemory(t *testing.T) {
	b, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteManifest(context.Background(), "logs", backendtest.NewManifest(t, "logs"), backend.NoToken)
	require.NoError(t, err)
	ids, err := b.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"logs"}, ids)
}

func TestBackend_Rows(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	m := backendtest.NewManifest(t, "logs")
	tok, err := b.WriteManifest(ctx, "logs", m, backend.NoToken)
	require.NoError(t, err)
	assert.Equal(t, backend.Token("1"), tok)

	var version uint64
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT version FROM indexes WHERE index_id = ?`, "logs").Scan(&version))
	assert.Equal(t, uint64(1), version)

	rows, err := b.db.QueryContext(ctx, `SELECT split_id, split_state FROM splits WHERE index_id = ? ORDER BY position`, "logs")
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]string{}
	var order []string
	for rows.Next() {
		var id, state string
		require.NoError(t, rows.Scan(&id, &state))
		got[id] = state
		order = append(order, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"s1", "s2", "s3"}, order)
	assert.Equal(t, string(model.SplitStateMarkedForDeletion), got["s2"])
}

func TestBackend_VersionMustAdvance(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	m := backendtest.NewManifest(t, "logs")
	tok, err := b.WriteManifest(ctx, "logs", m, backend.NoToken)
	require.NoError(t, err)

	_, err = b.WriteManifest(ctx, "logs", m, tok)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, backend.ErrVersionConflict)
}

func TestBackend_InvalidToken(t *testing.T) {
	b := openTestBackend(t)
	err := b.DeleteManifest(context.Background(), "logs", backend.Token("etag-abc"))
	assert.Error(t, err)
}

func TestBackend_DeleteRemovesSplitRows(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	_, err := b.WriteManifest(ctx, "logs", backendtest.NewManifest(t, "logs"), backend.NoToken)
	require.NoError(t, err)
	require.NoError(t, b.DeleteManifest(ctx, "logs", backend.NoToken))

	var n int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM splits`).Scan(&n))
	assert.Zero(t, n)
}
