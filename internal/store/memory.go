package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKV process-local KV used when CACHE_BACKEND=memory.
// ScanKeys supports the '*' and '?' subset of Redis glob patterns.
type MemoryKV struct {
	mu  sync.RWMutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: map[string]memEntry{}, now: time.Now}
}

func (k *MemoryKV) Get(_ context.Context, key string) (string, error) {
	k.mu.RLock()
	e, ok := k.m[key]
	k.mu.RUnlock()
	if !ok || k.expired(e) {
		return "", ErrMiss
	}
	return e.value, nil
}

func (k *MemoryKV) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = k.now().Add(ttl)
	}
	k.mu.Lock()
	k.m[key] = e
	k.mu.Unlock()
	return nil
}

func (k *MemoryKV) Delete(_ context.Context, keys ...string) error {
	k.mu.Lock()
	for _, key := range keys {
		delete(k.m, key)
	}
	k.mu.Unlock()
	return nil
}

func (k *MemoryKV) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []string
	for key, e := range k.m {
		if k.expired(e) {
			continue
		}
		if globMatch(pattern, key) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (k *MemoryKV) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !k.now().Before(e.expiresAt)
}

// globMatch '*' matches any run (including '/' and ':'), '?' one byte.
func globMatch(pattern, s string) bool {
	px, sx := 0, 0
	star, mark := -1, 0
	for sx < len(s) {
		switch {
		case px < len(pattern) && (pattern[px] == '?' || pattern[px] == s[sx]):
			px++
			sx++
		case px < len(pattern) && pattern[px] == '*':
			star, mark = px, sx
			px++
		case star >= 0:
			mark++
			px, sx = star+1, mark
		default:
			return false
		}
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
