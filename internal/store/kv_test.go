package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "a", "1", 0))
	v, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, kv.Delete(ctx, "a", "not-there"))
	_, err = kv.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryKV_TTL(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	_, err := kv.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	keys, err := kv.ScanKeys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryKV_ScanKeys(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	for _, k := range []string{
		"panel-cache:v1:/get-flows",
		"panel-cache:v1:/get-status/V1",
		"panel-cache:v0:/get-flows",
		"other",
	} {
		require.NoError(t, kv.Set(ctx, k, "x", 0))
	}

	keys, err := kv.ScanKeys(ctx, "panel-cache:*")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"panel-cache:v0:/get-flows",
		"panel-cache:v1:/get-flows",
		"panel-cache:v1:/get-status/V1",
	}, keys)

	keys, err = kv.ScanKeys(ctx, "panel-cache:v?:/get-flows")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "", true},
		{"a*", "abc", true},
		{"a*c", "abxc", true},
		{"a*c", "abx", false},
		{"?b", "ab", true},
		{"*:/x/*", "p:/x/y/z", true},
		{"abc", "abd", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, globMatch(tt.pattern, tt.s), "%q ~ %q", tt.pattern, tt.s)
	}
}
