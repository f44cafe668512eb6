package calendar

import "sync"

// Key identifies one resolved date range. Immutable by construction.
type Key struct {
	Exchange string
	Start    string
	End      string
}

// Cache memoizes resolved trading days per (exchange, start, end). It is
// owned and injected by the orchestrator rather than held as package state,
// and is invalidated when calendar data is written through to the store.
type Cache struct {
	mu   sync.RWMutex
	days map[Key][]string
}

// NewCache creates an empty calendar cache.
func NewCache() *Cache {
	return &Cache{days: make(map[Key][]string)}
}

// Get returns a copy of the cached trading days for k, if present.
func (c *Cache) Get(k Key) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	days, ok := c.days[k]
	if !ok {
		return nil, false
	}
	out := make([]string, len(days))
	copy(out, days)
	return out, true
}

// Put stores a copy of days under k.
func (c *Cache) Put(k Key, days []string) {
	cp := make([]string, len(days))
	copy(cp, days)
	c.mu.Lock()
	c.days[k] = cp
	c.mu.Unlock()
}

// Invalidate drops every cached range for the given exchange.
func (c *Cache) Invalidate(exchange string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.days {
		if k.Exchange == exchange {
			delete(c.days, k)
		}
	}
}

// Len returns the number of cached ranges.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.days)
}
