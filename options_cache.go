package scope

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a program cache used by the default compiler.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *runtimeConfig) {
		cfg.programCache = cache
	}
}

type mapProgramCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewMapProgramCache returns an unbounded ProgramCache safe for concurrent use.
func NewMapProgramCache() ProgramCache {
	return &mapProgramCache{entries: make(map[string]any)}
}

func (c *mapProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

func (c *mapProgramCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}
