package tenant

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.json")
	store, err := NewFileStore(path, slog.Default())
	require.NoError(t, err)
	return store, path
}

func TestFileStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, ok, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "42", "chan-1"))

	channelID, ok, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "chan-1", channelID)
}

func TestFileStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, "42", "chan-1"))
	require.NoError(t, store.Set(ctx, "42", "chan-2"))

	channelID, ok, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "chan-2", channelID)

	ids, err := store.ListTenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)
}

func TestFileStore_IsDestination(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, "42", "chan-1"))

	tests := []struct {
		name      string
		tenantID  string
		channelID string
		want      bool
	}{
		{"configured channel", "42", "chan-1", true},
		{"other channel", "42", "chan-2", false},
		{"unknown tenant", "77", "chan-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.IsDestination(ctx, tt.tenantID, tt.channelID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileStore_ListTenantIDs_Ordered(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, "77", "chan-b"))
	require.NoError(t, store.Set(ctx, "42", "chan-a"))
	require.NoError(t, store.Set(ctx, "100", "chan-c"))

	ids, err := store.ListTenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "42", "77"}, ids)
}

func TestFileStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	require.NoError(t, store.Set(ctx, "42", "chan-1"))

	// Disk state must match immediately, not on shutdown.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var persisted map[string]string
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, map[string]string{"42": "chan-1"}, persisted)

	// A new store on the same path sees the same tenants.
	reloaded, err := NewFileStore(path, slog.Default())
	require.NoError(t, err)

	channelID, ok, err := reloaded.Get(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "chan-1", channelID)
}

func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.json")

	store, err := NewFileStore(path, slog.Default())
	require.NoError(t, err)

	ids, err := store.ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	// A fresh empty artifact is created in place of the missing one.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	store, err := NewFileStore(path, slog.Default())
	require.NoError(t, err, "a corrupt store must not fail startup")

	ids, err := store.ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
