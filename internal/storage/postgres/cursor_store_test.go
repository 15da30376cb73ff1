package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-notifier/internal/storage"
)

func TestCursorStore_SetGetDelete(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewCursorStore(pool)

	_, err := store.GetCursor(ctx, "mainnet:GA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetCursor(ctx, "mainnet:GA", "12884905985-1"))
	require.NoError(t, store.SetCursor(ctx, "mainnet:GA", "12884905985-2"))

	cursor, err := store.GetCursor(ctx, "mainnet:GA")
	require.NoError(t, err)
	assert.Equal(t, "12884905985-2", cursor)

	require.NoError(t, store.DeleteCursor(ctx, "mainnet:GA"))
	_, err = store.GetCursor(ctx, "mainnet:GA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting again is fine.
	require.NoError(t, store.DeleteCursor(ctx, "mainnet:GA"))
}

func TestCursorStore_InvalidInput(t *testing.T) {
	store := NewCursorStore(nil)
	assert.ErrorIs(t, store.SetCursor(context.Background(), "", "1"), storage.ErrInvalidInput)
}
