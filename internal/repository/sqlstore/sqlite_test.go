package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/storefront-client/internal/model"
	"github.com/dtroode/storefront-client/internal/repository/sqlstore"
)

func TestStateRepository_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	conn, err := sqlstore.NewConnection(ctx, sqlstore.SQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	alice := sqlstore.NewStateRepository(conn, "alice")
	bob := sqlstore.NewStateRepository(conn, "bob")

	_, err = alice.Get(ctx, "cart:guest")
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, alice.Put(ctx, "cart:guest", []byte("one")))
	require.NoError(t, alice.Put(ctx, "cart:guest", []byte("two")))

	got, err := alice.Get(ctx, "cart:guest")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	_, err = bob.Get(ctx, "cart:guest")
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, alice.Delete(ctx, "cart:guest"))
	require.NoError(t, alice.Delete(ctx, "cart:guest"))
	_, err = alice.Get(ctx, "cart:guest")
	require.ErrorIs(t, err, model.ErrNotFound)

	// Reopening applies no migrations twice.
	again, err := sqlstore.NewConnection(ctx, sqlstore.SQLite, path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
