package weather

import (
	"sync"
	"time"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

// gridCache is a thread-safe TTL cache keyed by snapped grid cell. Nearby
// detections from the same satellite pass share one Open-Meteo call.
type gridCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value    domain.WeatherContext
	storedAt time.Time
}

func newGridCache(ttl time.Duration) *gridCache {
	return &gridCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *gridCache) get(key string) (domain.WeatherContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.WeatherContext{}, false
	}
	if domain.Now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return domain.WeatherContext{}, false
	}
	return e.value, true
}

func (c *gridCache) put(key string, value domain.WeatherContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: domain.Now()}
}

// clearExpired drops every stale entry, run on each upstream fetch so the
// map does not grow unbounded across a long-running process.
func (c *gridCache) clearExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := domain.Now()
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}
