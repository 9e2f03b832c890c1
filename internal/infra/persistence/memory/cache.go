package memory

import (
	"errors"
	"sync"

	"farmledger/pkg/domain"
)

var _ domain.LocalCache = (*Cache)(nil)

// ErrCacheClosed is returned after Close.
var ErrCacheClosed = errors.New("cache closed")

// Cache is a map-backed domain.LocalCache with load/save failure injection.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	closed   bool
	failLoad error
	failSave error
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

// Load returns a copy of the payload stored under key.
func (c *Cache) Load(key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false, ErrCacheClosed
	}
	if c.failLoad != nil {
		return nil, false, c.failLoad
	}
	payload, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Save stores a copy of payload under key.
func (c *Cache) Save(key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if c.failSave != nil {
		return c.failSave
	}
	c.entries[key] = append([]byte(nil), payload...)
	return nil
}

// FailLoad makes every Load return err until cleared with nil.
func (c *Cache) FailLoad(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLoad = err
}

// FailSave makes every Save return err until cleared with nil.
func (c *Cache) FailSave(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSave = err
}

// Keys returns the stored keys.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Close marks the cache unusable.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
