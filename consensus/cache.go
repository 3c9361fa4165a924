package consensus

import "sync"

// ValidatedPolicyCache holds policies whose commitment has been proven in the
// current transaction. Entries are write-once: a second insert for the same
// commitment keeps the first policy.
type ValidatedPolicyCache struct {
	mu      sync.RWMutex
	entries map[Commitment]*Policy
}

func NewValidatedPolicyCache() *ValidatedPolicyCache {
	return &ValidatedPolicyCache{entries: make(map[Commitment]*Policy)}
}

// Insert stores a copy of p and reports whether the key was new.
func (c *ValidatedPolicyCache) Insert(key Commitment, p *Policy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = p.Clone()
	return true
}

// Lookup returns a copy so callers cannot mutate the cached policy.
func (c *ValidatedPolicyCache) Lookup(key Commitment) (*Policy, bool) {
	c.mu.RLock()
	p, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (c *ValidatedPolicyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
