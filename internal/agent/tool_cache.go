package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// cachedToolResult pairs a stored tool result with the time it was cached,
// so expiry can be checked without a second map lookup.
type cachedToolResult struct {
	result   ToolResult
	cachedAt time.Time
}

// ToolResultCache is an LRU-with-TTL cache of tool results keyed by a
// canonical rendering of (tool name, arguments). The eviction shape mirrors
// internal/cache.DedupeCache (timestamp map + oldest-scan eviction) but
// stores the result payload rather than a bare presence marker.
type ToolResultCache struct {
	mu      sync.Mutex
	entries map[string]cachedToolResult
	ttl     time.Duration
	maxSize int
}

// NewToolResultCache creates a cache. ttl <= 0 disables expiry; maxSize <= 0
// disables the entry count, so every Put immediately clears the cache
// (matching DedupeCache's convention: a configured cache with no size limit
// is treated as "do not retain anything").
func NewToolResultCache(ttl time.Duration, maxSize int) *ToolResultCache {
	if ttl < 0 {
		ttl = 0
	}
	if maxSize < 0 {
		maxSize = 0
	}
	return &ToolResultCache{
		entries: make(map[string]cachedToolResult),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// ToolCacheKey renders the canonical cache key for a tool call:
// "{len(name)}#{name}:{canonical_json(args)}". The name length prefix
// guards against key collisions between a tool name containing the
// separator character and a shorter name followed by args that happen to
// start the same way.
func ToolCacheKey(name string, args json.RawMessage) (string, error) {
	canonical, err := canonicalizeJSON(args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d#%s:%s", len(name), name, canonical), nil
}

// canonicalizeJSON decodes arbitrary JSON and re-encodes it with object
// keys sorted recursively, so semantically identical arguments in a
// different key order produce the same cache key.
func canonicalizeJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("canonicalize tool args: %w", err)
	}
	var buf []byte
	buf, err := appendCanonical(buf, v)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func appendCanonical(buf []byte, v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			var err error
			buf, err = appendCanonical(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, item)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}

// Get returns the cached result for key if present and not expired.
func (c *ToolResultCache) Get(key string) (ToolResult, bool) {
	if key == "" {
		return ToolResult{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return ToolResult{}, false
	}
	if c.ttl > 0 && time.Since(entry.cachedAt) >= c.ttl {
		delete(c.entries, key)
		return ToolResult{}, false
	}
	return entry.result, true
}

// Put stores result under key, truncating first so the cached payload never
// grows unbounded (the caller's own MaxChars truncation, if any, should
// already have run before Put is called).
func (c *ToolResultCache) Put(key string, result ToolResult) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedToolResult{result: result, cachedAt: time.Now()}
	c.evictLocked()
}

func (c *ToolResultCache) evictLocked() {
	now := time.Now()
	if c.ttl > 0 {
		for k, e := range c.entries {
			if now.Sub(e.cachedAt) >= c.ttl {
				delete(c.entries, k)
			}
		}
	}

	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		first := true
		for k, e := range c.entries {
			if first || e.cachedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.cachedAt
				first = false
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
	}
}

// Clear removes every cached entry.
func (c *ToolResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedToolResult)
}

// Size returns the current number of cached entries.
func (c *ToolResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
