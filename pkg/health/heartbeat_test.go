package health_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestHeartbeat_RegisterAndAlive(t *testing.T) {
	clock := newFakeClock()
	hb := health.NewHeartbeatManager(0, health.WithClock(clock.Now))

	assert.True(t, hb.Register("A", 5*time.Second))
	assert.False(t, hb.Register("A", time.Minute), "re-registering is a no-op")

	interval, ok := hb.Interval("A")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, interval, "the first registration wins")

	assert.True(t, hb.IsAlive("A"))
	clock.Advance(5 * time.Second)
	assert.True(t, hb.IsAlive("A"), "alive up to and including the interval")
	clock.Advance(time.Millisecond)
	assert.False(t, hb.IsAlive("A"))

	assert.True(t, hb.Ping("A"))
	assert.True(t, hb.IsAlive("A"))

	seen, ok := hb.LastSeen("A")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), seen)
}

func TestHeartbeat_DefaultInterval(t *testing.T) {
	hb := health.NewHeartbeatManager(0)
	hb.Register("A", 0)

	interval, _ := hb.Interval("A")
	assert.Equal(t, domain.DefaultPingInterval, interval)

	custom := health.NewHeartbeatManager(10 * time.Second)
	custom.Register("A", 0)
	interval, _ = custom.Interval("A")
	assert.Equal(t, 10*time.Second, interval)
}

func TestHeartbeat_Unregistered(t *testing.T) {
	hb := health.NewHeartbeatManager(0)

	assert.False(t, hb.Ping("ghost"))
	assert.False(t, hb.IsAlive("ghost"))
	_, ok := hb.LastSeen("ghost")
	assert.False(t, ok)
	_, ok = hb.Interval("ghost")
	assert.False(t, ok)

	hb.Register("A", 0)
	assert.True(t, hb.Unregister("A"))
	assert.False(t, hb.Unregister("A"))
	assert.Empty(t, hb.Chains())
}

func TestHeartbeat_Run(t *testing.T) {
	hb := health.NewHeartbeatManager(time.Hour)
	hb.Register("alive", 0)
	hb.Register("silent", 0)

	before, _ := hb.LastSeen("silent")

	var mu sync.Mutex
	probed := map[string]int{}
	probe := func(ctx context.Context, chainID string) bool {
		mu.Lock()
		defer mu.Unlock()
		probed[chainID]++
		return chainID == "alive"
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hb.Run(ctx, 5*time.Millisecond, probe)
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return probed["alive"] >= 2 && probed["silent"] >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	after, _ := hb.LastSeen("silent")
	assert.Equal(t, before, after, "a chain that does not answer is not pinged")
	assert.Equal(t, []string{"alive", "silent"}, hb.Chains())
}

func TestHeartbeat_RunNonPositivePeriod(t *testing.T) {
	hb := health.NewHeartbeatManager(time.Hour)
	hb.Register("A", 0)

	for _, every := range []time.Duration{0, -time.Second} {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- hb.Run(ctx, every, nil)
		}()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled, "period %v", every)
		case <-time.After(time.Second):
			t.Fatalf("Run(%v) did not stop", every)
		}
	}
}
