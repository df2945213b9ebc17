package roads

import (
	"sync"
	"time"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

// wayCache is a thread-safe LRU cache of Overpass results per grid cell,
// with a TTL so road data refreshes daily.
type wayCache struct {
	maxEntries int
	ttl        time.Duration
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	head       *cacheEntry // most recently used
	tail       *cacheEntry // least recently used
}

type cacheEntry struct {
	key      string
	ways     []way
	storedAt time.Time
	prev     *cacheEntry
	next     *cacheEntry
}

func newWayCache(maxEntries int, ttl time.Duration) *wayCache {
	return &wayCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*cacheEntry),
	}
}

func (c *wayCache) get(key string) ([]way, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if domain.Now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.ways, true
}

func (c *wayCache) put(key string, ways []way) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.ways = ways
		e.storedAt = domain.Now()
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, ways: ways, storedAt: domain.Now()}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *wayCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *wayCache) addToFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *wayCache) remove(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *wayCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
