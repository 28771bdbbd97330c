package application

import (
	"sync"
	"time"

	"github.com/example/worktrack/internal/rules"
)

// ruleCache keeps recently loaded rules so that session starts do not hit the
// rule store on every request. Every rule mutation invalidates it.
type ruleCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]ruleCacheEntry
}

type ruleCacheEntry struct {
	rule      rules.Rule
	expiresAt time.Time
}

func newRuleCache(ttl time.Duration, maxEntries int, now func() time.Time) *ruleCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &ruleCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]ruleCacheEntry),
	}
}

func (c *ruleCache) Get(id string) (rules.Rule, bool) {
	if c == nil {
		return rules.Rule{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return rules.Rule{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return rules.Rule{}, false
	}
	return entry.rule.Clone(), true
}

func (c *ruleCache) Store(rule rules.Rule) {
	if c == nil || rule.ID == "" {
		return
	}
	cloned := rule.Clone()
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[rule.ID] = ruleCacheEntry{rule: cloned, expiresAt: expiry}
}

func (c *ruleCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]ruleCacheEntry)
	c.mu.Unlock()
}

func (c *ruleCache) cleanupLocked() {
	now := c.now()
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
}

func (c *ruleCache) evictOneLocked() {
	for id := range c.entries {
		delete(c.entries, id)
		return
	}
}
