package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CerneaMihnea/smart-valve-control/internal/store"
)

func TestCacheable(t *testing.T) {
	assert.True(t, Cacheable("/get-flows"))
	assert.True(t, Cacheable("/get-status/V1"))
	assert.False(t, Cacheable("/get-status/"))
	assert.False(t, Cacheable("/set-command"))
	assert.False(t, Cacheable("/save-graph"))
}

func TestOfflineCache_StoreLookup(t *testing.T) {
	ctx := context.Background()
	c := NewOfflineCache(store.NewMemoryKV(), "valva-cache-v1", zap.NewNop())

	c.Store(ctx, "/get-flows", []byte(`[]`))
	c.Store(ctx, "/set-command", []byte(`ignored`))

	body, ok := c.Lookup(ctx, "/get-flows")
	require.True(t, ok)
	assert.Equal(t, `[]`, string(body))

	_, ok = c.Lookup(ctx, "/set-command")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "/devices")
	assert.False(t, ok)
}

func TestOfflineCache_PurgeOtherVersions(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "panel-cache:valva-cache-v0:/get-flows", "old", 0))
	require.NoError(t, kv.Set(ctx, "panel-cache:valva-cache-v1:/get-flows", "new", 0))
	require.NoError(t, kv.Set(ctx, "unrelated", "x", 0))

	c := NewOfflineCache(kv, "valva-cache-v1", zap.NewNop())
	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := kv.ScanKeys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"panel-cache:valva-cache-v1:/get-flows", "unrelated"}, keys)
}

func TestOfflineCache_NilIsNoop(t *testing.T) {
	var c *OfflineCache
	c.Store(context.Background(), "/get-flows", []byte("x"))
	_, ok := c.Lookup(context.Background(), "/get-flows")
	assert.False(t, ok)
	n, err := c.Purge(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
