package oracle

import (
	"strings"
	"sync"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

// LocalCache keeps market contexts in process memory for deployments
// without Redis
// ⭐ SSOT: only market context is cached; snapshots never are
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

type localEntry struct {
	mc       contracts.MarketContext
	storedAt time.Time
}

// NewLocalCache creates a cache whose entries expire after ttl.
func NewLocalCache(ttl time.Duration, log *logger.Logger) *LocalCache {
	return &LocalCache{
		entries: make(map[string]localEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  log,
	}
}

// Update stores mc unless the cached copy is newer by AsOf.
func (c *LocalCache) Update(mc *contracts.MarketContext) bool {
	key := strings.ToUpper(mc.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && mc.AsOf.Before(existing.mc.AsOf) {
		c.logger.WithFields(map[string]interface{}{
			"symbol":   key,
			"new_asof": mc.AsOf,
			"old_asof": existing.mc.AsOf,
		}).Debug("Rejected older market context")
		return false
	}

	c.entries[key] = localEntry{mc: *mc, storedAt: c.now()}
	return true
}

// Get returns a copy of the cached context. Expired entries are misses.
func (c *LocalCache) Get(symbol string) (*contracts.MarketContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[strings.ToUpper(symbol)]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return nil, false
	}
	mc := e.mc
	return &mc, true
}

// Delete drops one symbol.
func (c *LocalCache) Delete(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, strings.ToUpper(symbol))
}

// Prune removes expired entries and returns how many were dropped.
func (c *LocalCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached symbols, expired ones included.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
