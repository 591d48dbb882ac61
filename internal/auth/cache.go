package auth

import (
	"container/list"
	"crypto/sha256"
	"sync"
	"time"
)

// resultCache holds recent validation outcomes so a burst of requests
// with the same token does not hammer signature verification. Entries
// are keyed by a hash of the token, never the token itself, and expire
// after a short TTL independent of the token's own lifetime.
type resultCache struct {
	ttl        time.Duration
	maxEntries int

	mu       sync.Mutex
	items    map[[32]byte]*list.Element
	eviction *list.List
}

type resultEntry struct {
	key       [32]byte
	claims    *Claims
	err       error
	expiresAt time.Time
}

func newResultCache(ttl time.Duration, maxEntries int) *resultCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	return &resultCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		items:      make(map[[32]byte]*list.Element),
		eviction:   list.New(),
	}
}

// get returns a cached outcome for the token, if fresh.
func (c *resultCache) get(token string) (*Claims, error, bool) {
	key := sha256.Sum256([]byte(token))

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, nil, false
	}

	entry := elem.Value.(*resultEntry)
	if time.Now().After(entry.expiresAt) {
		c.eviction.Remove(elem)
		delete(c.items, key)
		return nil, nil, false
	}

	c.eviction.MoveToFront(elem)
	return entry.claims, entry.err, true
}

// put stores a validation outcome. The entry lifetime is capped at the
// token's own expiration so a token never outlives itself in cache.
func (c *resultCache) put(token string, claims *Claims, err error) {
	if c.ttl <= 0 {
		return
	}

	expiresAt := time.Now().Add(c.ttl)
	if claims != nil && !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(expiresAt) {
		expiresAt = claims.ExpiresAt
	}

	key := sha256.Sum256([]byte(token))

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value = &resultEntry{key: key, claims: claims, err: err, expiresAt: expiresAt}
		return
	}

	elem := c.eviction.PushFront(&resultEntry{key: key, claims: claims, err: err, expiresAt: expiresAt})
	c.items[key] = elem

	for c.eviction.Len() > c.maxEntries {
		oldest := c.eviction.Back()
		c.eviction.Remove(oldest)
		delete(c.items, oldest.Value.(*resultEntry).key)
	}
}

// len returns the number of cached outcomes.
func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}
