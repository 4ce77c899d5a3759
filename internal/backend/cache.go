package backend

import (
	"context"
	"strings"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/store"

	"go.uber.org/zap"
)

// KeyPrefix every offline cache key is KeyPrefix + <cache name> + ":" + <path>
const KeyPrefix = "panel-cache:"

// Read paths whose responses may be served offline. /get-status/ is a prefix.
var cacheablePaths = []string{
	pathZonesDevices,
	pathDevices,
	pathDevicesConfig,
	pathLoadGraph,
	pathGetFlows,
}

const cacheablePrefix = "/get-status/"

// OfflineCache versioned cache of backend read responses kept in a KV.
// A nil *OfflineCache caches nothing.
type OfflineCache struct {
	kv     store.KV
	name   string
	ttl    time.Duration
	logger *zap.Logger
}

func NewOfflineCache(kv store.KV, name string, logger *zap.Logger) *OfflineCache {
	return &OfflineCache{kv: kv, name: name, logger: logger}
}

func (c *OfflineCache) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *OfflineCache) key(path string) string {
	return KeyPrefix + c.name + ":" + path
}

// Cacheable reports whether path is on the read allow-list.
func Cacheable(path string) bool {
	for _, p := range cacheablePaths {
		if p == path {
			return true
		}
	}
	return strings.HasPrefix(path, cacheablePrefix) && len(path) > len(cacheablePrefix)
}

// Store keeps body for path; non-cacheable paths are ignored.
func (c *OfflineCache) Store(ctx context.Context, path string, body []byte) {
	if c == nil || !Cacheable(path) {
		return
	}
	if err := c.kv.Set(ctx, c.key(path), string(body), c.ttl); err != nil {
		c.logger.Warn("Offline cache store failed", zap.String("path", path), zap.Error(err))
	}
}

// Lookup cached body for path.
func (c *OfflineCache) Lookup(ctx context.Context, path string) ([]byte, bool) {
	if c == nil || !Cacheable(path) {
		return nil, false
	}
	v, err := c.kv.Get(ctx, c.key(path))
	if err != nil {
		if err != store.ErrMiss {
			c.logger.Warn("Offline cache lookup failed", zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	return []byte(v), true
}

// Purge deletes the entries of every cache name other than the current one.
func (c *OfflineCache) Purge(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	keys, err := c.kv.ScanKeys(ctx, KeyPrefix+"*")
	if err != nil {
		return 0, err
	}
	current := KeyPrefix + c.name + ":"
	var stale []string
	for _, k := range keys {
		if !strings.HasPrefix(k, current) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := c.kv.Delete(ctx, stale...); err != nil {
		return 0, err
	}
	c.logger.Info("Purged stale offline cache entries",
		zap.String("cache_name", c.name),
		zap.Int("count", len(stale)),
	)
	return len(stale), nil
}
