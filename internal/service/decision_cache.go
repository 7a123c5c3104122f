package service

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/spokestack/accessctl/internal/domain/access"
)

// cacheEntry is a doubly-linked list node for the LRU cache.
type cacheEntry struct {
	key       uint64
	decision  access.Decision
	expiresAt time.Time
	prev      *cacheEntry
	next      *cacheEntry
}

// decisionCache is a bounded LRU cache with per-entry TTL. The short TTL
// bounds the staleness window for policy edits and time-window rules;
// per-request re-querying stays the default and the cache is opt-in.
// Thread-safe with Mutex (both Get and Put mutate LRU order).
type decisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*cacheEntry
	head    *cacheEntry // most recently used
	tail    *cacheEntry // least recently used
	maxSize int
	ttl     time.Duration
}

// newDecisionCache creates an LRU cache with the given size and TTL.
func newDecisionCache(maxSize int, ttl time.Duration) *decisionCache {
	return &decisionCache{
		entries: make(map[uint64]*cacheEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves an unexpired cached decision, promoting it to most
// recently used.
func (c *decisionCache) Get(key uint64, now time.Time) (access.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return access.Decision{}, false
	}
	if now.After(e.expiresAt) {
		c.unlinkLocked(e)
		delete(c.entries, key)
		return access.Decision{}, false
	}
	c.moveToHeadLocked(e)
	return e.decision, true
}

// Put stores a decision, evicting the least recently used entry at
// capacity.
func (c *decisionCache) Put(key uint64, d access.Decision, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.decision = d
		e.expiresAt = now.Add(c.ttl)
		c.moveToHeadLocked(e)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}
	e := &cacheEntry{key: key, decision: d, expiresAt: now.Add(c.ttl)}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

func (c *decisionCache) moveToHeadLocked(e *cacheEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *decisionCache) pushHeadLocked(e *cacheEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *decisionCache) unlinkLocked(e *cacheEntry) {
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
	e.prev = nil
	e.next = nil
}

func (c *decisionCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// decisionCacheKey hashes everything a decision depends on besides the
// stored rules: identity, resource, action, and target attributes.
func decisionCacheKey(orgID, userID, resource, action string, target *access.TargetEntity) uint64 {
	h := xxhash.New()
	sep := []byte{0}

	_, _ = h.WriteString(orgID)
	_, _ = h.Write(sep)
	_, _ = h.WriteString(userID)
	_, _ = h.Write(sep)
	_, _ = h.WriteString(resource)
	_, _ = h.Write(sep)
	_, _ = h.WriteString(action)
	_, _ = h.Write(sep)

	if target != nil {
		_, _ = h.WriteString(target.ID)
		_, _ = h.Write(sep)
		_, _ = h.WriteString(target.OwnerID)
		_, _ = h.Write(sep)
		_, _ = h.WriteString(target.Department)
		_, _ = h.Write(sep)

		// Sorted for determinism.
		keys := make([]string, 0, len(target.Attributes))
		for k := range target.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = h.WriteString(k)
			_, _ = h.Write([]byte{1})
			_, _ = h.WriteString(target.Attributes[k])
			_, _ = h.Write(sep)
		}
	}
	return h.Sum64()
}
