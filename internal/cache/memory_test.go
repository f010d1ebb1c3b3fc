package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(100, time.Hour)
	defer m.Close()

	_, found, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, m.Delete(ctx, "k"))
	_, found, _ = m.Get(ctx, "k")
	assert.False(t, found)
}

func TestMemoryBackendExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(100, time.Hour)
	defer m.Close()

	require.NoError(t, m.Set(ctx, "short", []byte("x"), 10*time.Millisecond))
	require.NoError(t, m.Set(ctx, "forever", []byte("y"), 0))
	time.Sleep(30 * time.Millisecond)

	_, found, _ := m.Get(ctx, "short")
	assert.False(t, found)
	_, found, _ = m.Get(ctx, "forever")
	assert.True(t, found)
}

func TestMemoryBackendCleanupEnforcesMaxSize(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(2, time.Hour)
	defer m.Close()

	require.NoError(t, m.Set(ctx, "soon", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "later", []byte("2"), time.Hour))
	require.NoError(t, m.Set(ctx, "never", []byte("3"), 0))
	m.cleanup()

	_, found, _ := m.Get(ctx, "soon")
	assert.False(t, found)
	_, found, _ = m.Get(ctx, "later")
	assert.True(t, found)
	_, found, _ = m.Get(ctx, "never")
	assert.True(t, found)
}

func TestOpenWithoutRedisURLUsesMemory(t *testing.T) {
	b, err := Open("", "test:")
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &MemoryBackend{}, b)
}

func TestMemoryBackendCloseIsIdempotent(t *testing.T) {
	m := NewMemoryBackend(1, time.Hour)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}
