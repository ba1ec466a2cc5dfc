package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateBackendContract runs a suite of tests to verify that a StateBackend implementation
// adheres to the defined interface contract.
func RunStateBackendContract(t *testing.T, backend StateBackend) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405") + "-"

	t.Run("Store and Load", func(t *testing.T) {
		key := prefix + "order"
		value := map[string]any{"order_id": "ORD-1", "status": "received"}

		err := backend.Store(ctx, key, value)
		require.NoError(t, err, "Store should not return error")

		loaded, err := backend.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")

		// Persistent backends round-trip through JSON, so only compare the shape.
		m, ok := loaded.(map[string]any)
		require.True(t, ok, "map values should load back as map[string]any, got %T", loaded)
		assert.Equal(t, "ORD-1", m["order_id"])
		assert.Equal(t, "received", m["status"])
	})

	t.Run("Overwrite", func(t *testing.T) {
		key := prefix + "counter"
		require.NoError(t, backend.Store(ctx, key, "one"))
		require.NoError(t, backend.Store(ctx, key, "two"))

		loaded, err := backend.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "two", loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := backend.Load(ctx, prefix+"missing")
		assert.ErrorIs(t, err, domain.ErrUnknownKey)
	})

	t.Run("Remove", func(t *testing.T) {
		key := prefix + "gone"
		require.NoError(t, backend.Store(ctx, key, "value"))

		require.NoError(t, backend.Remove(ctx, key), "Remove should not return error")

		_, err := backend.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrUnknownKey, "Load after Remove should return ErrUnknownKey")

		assert.NoError(t, backend.Remove(ctx, key), "Removing a missing key is not an error")
	})

	t.Run("Keys", func(t *testing.T) {
		k1 := prefix + "keys-b"
		k2 := prefix + "keys-a"
		require.NoError(t, backend.Store(ctx, k1, 1))
		require.NoError(t, backend.Store(ctx, k2, 2))
		defer func() {
			_ = backend.Remove(ctx, k1)
			_ = backend.Remove(ctx, k2)
		}()

		keys, err := backend.Keys(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, k1)
		assert.Contains(t, keys, k2)
		assert.IsNonDecreasing(t, keys, "keys must be sorted")
	})
}
