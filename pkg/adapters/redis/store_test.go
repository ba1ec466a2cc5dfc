package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/crosschain/pkg/adapters/redis"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunStateBackendContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()

	store := redis.NewFromClient(client, redis.WithPrefix("test:"))
	require.NoError(t, store.Store(ctx, "chain1_data", map[string]any{"value": 100}))

	assert.True(t, mr.Exists("test:kv:chain1_data"))

	raw, err := mr.Get("test:kv:chain1_data")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":100}`, raw)

	v, err := store.Load(ctx, "chain1_data")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": float64(100)}, v)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	// 1. Save
	require.NoError(t, store.Store(ctx, "ephemeral", "bar"))

	// 2. Verify Keys (immediately)
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "ephemeral")

	// 3. Fast Forward time in miniredis (for Key Expiration)
	mr.FastForward(2 * time.Second)

	// 4. Verify Load (should fail)
	_, err = store.Load(ctx, "ephemeral")
	assert.ErrorIs(t, err, domain.ErrUnknownKey)

	// 5. Verify Keys (lazily cleaned up).
	// The index score is based on time.Now(), so real time must pass the expiry too.
	time.Sleep(1200 * time.Millisecond)

	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
