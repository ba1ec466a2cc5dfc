package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/crosschain/pkg/adapters/file"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.StateBackend = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStateBackendContract(t, file.New(t.TempDir()))
}

func TestFileStore_EscapesKeys(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "research/results", map[string]any{"confidence": 0.72}))

	_, err := os.Stat(filepath.Join(dir, "research%2Fresults.json"))
	require.NoError(t, err, "key should map to a single escaped file")

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"research/results"}, keys)

	v, err := store.Load(ctx, "research/results")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"confidence": 0.72}, v)
}

func TestFileStore_LeadingDotKeys(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, ".cfg", "on"))
	require.NoError(t, store.Store(ctx, "cfg", "off"))

	_, err := os.Stat(filepath.Join(dir, "%2Ecfg.json"))
	require.NoError(t, err)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".cfg", "cfg"}, keys)

	v, err := store.Load(ctx, ".cfg")
	require.NoError(t, err)
	assert.Equal(t, "on", v)

	require.NoError(t, store.Remove(ctx, ".cfg"))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cfg"}, keys)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, file.New(dir).Store(ctx, "counter", 3))

	v, err := file.New(dir).Load(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)
}

func TestFileStore_MissingDirectory(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "not-yet"))
	ctx := context.Background()

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = store.Load(ctx, "anything")
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("x"), 0o600))

	keys, err := file.New(dir).Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}
