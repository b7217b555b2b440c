// Package cache provides an in-memory TTL cache for rendered API responses
// with ETag support. Entries are invalidated when a date's schedule changes.
package cache

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Default TTLs by response kind.
const (
	TTLSchedule = 5 * time.Minute  // Day views; invalidated on ingest anyway
	TTLStatus   = 30 * time.Second // Status answers depend on the hour
)

type entry struct {
	data []byte
	etag string
}

// Cache is a thread-safe TTL cache of response bodies.
type Cache struct {
	store   *gocache.Cache
	enabled bool
}

// New creates a cache whose entries live for ttl by default. Pass
// enabled=false to create a no-op cache.
func New(enabled bool, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = TTLSchedule
	}
	return &Cache{
		store:   gocache.New(ttl, 2*ttl),
		enabled: enabled,
	}
}

// Get retrieves a cached body and its ETag.
func (c *Cache) Get(key string) (data []byte, etag string, ok bool) {
	if !c.enabled {
		return nil, "", false
	}
	v, found := c.store.Get(key)
	if !found {
		return nil, "", false
	}
	e := v.(entry)
	return e.data, e.etag, true
}

// Set stores a body for ttl and returns its ETag. A zero ttl uses the
// cache default.
func (c *Cache) Set(key string, data []byte, ttl time.Duration) string {
	etag := ComputeETag(data)
	if !c.enabled {
		return etag
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, entry{data: data, etag: etag}, ttl)
	return etag
}

// InvalidatePrefix drops every entry whose key starts with prefix and
// returns how many were dropped.
func (c *Cache) InvalidatePrefix(prefix string) int {
	if !c.enabled {
		return 0
	}
	n := 0
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			n++
		}
	}
	return n
}

// Stats returns cache statistics.
func (c *Cache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"enabled":     c.enabled,
		"active_keys": c.store.ItemCount(),
	}
}

// ComputeETag generates a weak ETag from response data using MD5.
func ComputeETag(data []byte) string {
	hash := md5.Sum(data)
	return fmt.Sprintf(`W/"%x"`, hash[:8])
}

// CheckETagMatch reports whether an If-None-Match header matches etag. It
// accepts "*" and comma-separated lists.
func CheckETagMatch(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
