// Package resultcache holds fetched table results keyed by source, table
// and condition. One Cache is shared by every loader in a process.
package resultcache

import (
	"sort"
	"sync"

	"github.com/txn2/table-loader/pkg/catalog"
)

// Key identifies a table within a source.
type Key struct {
	Source string
	Table  string
}

// String returns "source.table".
func (k Key) String() string {
	return k.Source + "." + k.Table
}

// Cache maps Key to condition to result. A condition is an uninterpreted
// string; "" is a valid condition meaning unfiltered.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]map[string]*catalog.Result

	// seq serializes multi-step sequences run through Exclusive.
	seq sync.Mutex
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]map[string]*catalog.Result)}
}

// Lookup returns the result stored for key and condition.
func (c *Cache) Lookup(key Key, condition string) (*catalog.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.entries[key][condition]
	return result, ok
}

// Store records result for key and condition, replacing any previous
// result for the same pair.
func (c *Cache) Store(key Key, condition string, result *catalog.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byCond, ok := c.entries[key]
	if !ok {
		byCond = make(map[string]*catalog.Result)
		c.entries[key] = byCond
	}
	byCond[condition] = result
}

// HasKey reports whether any condition has been stored for key.
func (c *Cache) HasKey(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Clear drops every entry for every key. It returns the number of keys
// dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[Key]map[string]*catalog.Result)
	return n
}

// Len returns the number of keys held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the held keys ordered by source, then table.
func (c *Cache) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Table < keys[j].Table
	})
	return keys
}

// Conditions returns the conditions stored for key, sorted.
func (c *Cache) Conditions(key Key) []string {
	c.mu.RLock()
	conds := make([]string, 0, len(c.entries[key]))
	for cond := range c.entries[key] {
		conds = append(conds, cond)
	}
	c.mu.RUnlock()

	sort.Strings(conds)
	return conds
}

// Exclusive runs fn while holding the sequence lock, so a check-then-store
// sequence in fn is not interleaved with another Exclusive caller. fn may
// call any other Cache method.
func (c *Cache) Exclusive(fn func() error) error {
	c.seq.Lock()
	defer c.seq.Unlock()
	return fn()
}
