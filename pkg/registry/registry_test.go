package registry_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChain is a pointer type so identity can be asserted.
type stubChain struct{ name string }

func (c *stubChain) Invoke(ctx context.Context, input any) (any, error) {
	return c.name, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := registry.NewRegistry()
	chain := &stubChain{name: "analytics"}

	require.NoError(t, r.Register("analytics", chain))

	got, err := r.Get("analytics")
	require.NoError(t, err)
	assert.Same(t, chain, got, "Get must return the registered instance")
	assert.True(t, r.Contains("analytics"))
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	r := registry.NewRegistry()
	ids := []string{"order_service", "inventory_service", "payment_service", "shipping_service", "notification_service"}
	for _, id := range ids {
		require.NoError(t, r.Register(id, &stubChain{name: id}))
	}

	assert.Equal(t, ids, r.List())
	assert.Equal(t, len(ids), r.Len())
}

func TestRegistry_DuplicateLeavesStateUnchanged(t *testing.T) {
	r := registry.NewRegistry()
	first := &stubChain{name: "first"}
	require.NoError(t, r.Register("A", first))
	require.NoError(t, r.Register("B", &stubChain{name: "b"}))

	err := r.Register("A", &stubChain{name: "second"})
	assert.ErrorIs(t, err, domain.ErrDuplicateChain)

	got, err := r.Get("A")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, []string{"A", "B"}, r.List())
}

func TestRegistry_Overwrite(t *testing.T) {
	r := registry.NewRegistry()
	require.NoError(t, r.Register("A", &stubChain{name: "old"}))
	require.NoError(t, r.Register("B", &stubChain{name: "b"}))

	replacement := &stubChain{name: "new"}
	require.NoError(t, r.Register("A", replacement, registry.WithOverwrite()))

	got, err := r.Get("A")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
	assert.Equal(t, []string{"A", "B"}, r.List(), "overwrite keeps the original position")
}

func TestRegistry_InvalidInput(t *testing.T) {
	r := registry.NewRegistry()
	assert.ErrorIs(t, r.Register("", &stubChain{}), domain.ErrInvalidChain)
	assert.ErrorIs(t, r.Register("A", nil), domain.ErrInvalidChain)
	assert.Zero(t, r.Len())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := registry.NewRegistry()
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownChain)
}

func TestRegistry_DeregisterIsStrict(t *testing.T) {
	r := registry.NewRegistry()
	require.NoError(t, r.Register("A", &stubChain{}))
	require.NoError(t, r.Register("B", &stubChain{}))

	require.NoError(t, r.Deregister("A"))
	assert.False(t, r.Contains("A"))
	assert.Equal(t, []string{"B"}, r.List())

	// Second attempt surfaces the error instead of silently succeeding.
	assert.ErrorIs(t, r.Deregister("A"), domain.ErrUnknownChain)
	assert.ErrorIs(t, r.Deregister("never"), domain.ErrUnknownChain)
}

func TestRegistry_Hooks(t *testing.T) {
	var events []string
	hooks := domain.LifecycleHooks{
		OnChainRegistered: func(ctx context.Context, e *domain.ChainEvent) {
			events = append(events, "+"+e.ChainID)
		},
		OnChainDeregistered: func(ctx context.Context, e *domain.ChainEvent) {
			events = append(events, "-"+e.ChainID)
		},
	}
	r := registry.NewRegistry(registry.WithHooks(hooks))

	require.NoError(t, r.Register("A", &stubChain{}))
	_ = r.Register("A", &stubChain{}) // duplicate, no event
	require.NoError(t, r.Deregister("A"))

	assert.Equal(t, []string{"+A", "-A"}, events)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := registry.NewRegistry()
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			id := fmt.Sprintf("chain-%d", i)
			_ = r.Register(id, &stubChain{name: id})
			_, _ = r.Get(id)
			_ = r.List()
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 8, r.Len())
}
