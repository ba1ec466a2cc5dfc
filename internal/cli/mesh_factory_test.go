package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/crosschain/internal/config"
	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuntime_ConfiguredChains(t *testing.T) {
	cfg := config.Default()
	cfg.Chains = []config.ChainConfig{
		{ID: "chain_alpha", PingInterval: config.Duration(5 * time.Second), Metadata: map[string]string{"team": "research"}},
		{ID: "chain_beta"},
	}

	rt, err := NewRuntime(cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Mesh.Close()

	ctx := context.Background()
	assert.Equal(t, []string{"chain_alpha", "chain_beta"}, rt.Mesh.Registry().List())

	res := rt.Mesh.Route(ctx, domain.Message{Type: domain.MessageTypePing, Destination: "chain_alpha"})
	require.True(t, res.Success)
	assert.Equal(t, "pong", res.Value)

	res = rt.Mesh.Route(ctx, domain.Message{Type: MessageTypeInfo, Destination: "chain_alpha"})
	require.True(t, res.Success)
	assert.Equal(t, map[string]string{"team": "research"}, res.Value.(map[string]any)["metadata"])

	interval, ok := rt.Mesh.Health().Heartbeats().Interval("chain_alpha")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, interval)

	interval, _ = rt.Mesh.Health().Heartbeats().Interval("chain_beta")
	assert.Equal(t, domain.DefaultPingInterval, interval)

	families, err := rt.Metrics.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewRuntime_ProcessHandlers(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	cfg := config.Default()
	cfg.Chains = []config.ChainConfig{{
		ID: "chain_gamma",
		Handlers: []config.HandlerConfig{
			{Type: "echo", Command: "sh", Args: []string{"-c", `echo "$CROSSCHAIN_PAYLOAD"`}},
		},
	}}

	rt, err := NewRuntime(cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Mesh.Close()

	res := rt.Mesh.Route(context.Background(), domain.Message{Type: "echo", Destination: "chain_gamma", Payload: "hello"})
	require.True(t, res.Success, "route failed: %v", res.Err)
	assert.Equal(t, "hello", res.Value)
}

func TestNewRuntime_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.State.Backend = config.BackendRedis
	cfg.State.Redis.Addr = mr.Addr()

	rt, err := NewRuntime(cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Mesh.Close()

	require.NoError(t, rt.Mesh.State().Set(context.Background(), "k", "v"))
	assert.True(t, mr.Exists("crosschain:state:kv:k"))
}

func TestNewRuntime_EncryptedFileBackend(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.State.Backend = config.BackendFile
	cfg.State.File.Dir = dir
	cfg.State.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cfg.State.PIIPatterns = []string{"password"}

	rt, err := NewRuntime(cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Mesh.Close()

	ctx := context.Background()
	require.NoError(t, rt.Mesh.State().Set(ctx, "account", map[string]any{"user": "jdoe", "password": "hunter2"}))

	raw, err := os.ReadFile(filepath.Join(dir, "account.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "__encrypted__")
	assert.NotContains(t, string(raw), "jdoe")

	v, ok, err := rt.Mesh.State().Get(ctx, "account")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"user": "jdoe", "password": "***"}, v)
}

func TestNewRuntime_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.State.Backend = config.BackendSQLite
	cfg.State.SQLite.Path = filepath.Join(t.TempDir(), "state.db")

	rt, err := NewRuntime(cfg, logging.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, rt.Mesh.State().Set(ctx, "counter", 1))
	require.NoError(t, rt.Mesh.Close())

	rt, err = NewRuntime(cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Mesh.Close()

	v, ok, err := rt.Mesh.State().Get(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(1), v)
}

func TestPingerInterval(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 2*time.Second, PingerInterval(cfg))

	cfg.Health.PingerInterval = 0
	assert.Equal(t, 2*time.Second, PingerInterval(cfg))

	cfg.Health.PingerInterval = config.Duration(time.Second)
	assert.Equal(t, time.Second, PingerInterval(cfg))
}
