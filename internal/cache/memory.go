package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryCache is an in-memory cache with TTL support and LRU eviction.
type MemoryCache struct {
	items   map[string]*memoryItem
	maxSize int
	mu      sync.RWMutex
}

type memoryItem struct {
	data       []byte
	expiration time.Time
	accessed   time.Time
}

// NewMemoryCache creates a memory cache bounded at maxSize entries. A
// non-positive maxSize gets a default bound.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: maxSize,
	}
}

// Get retrieves a value and unmarshals it into dest.
func (mc *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, exists := mc.items[key]
	if !exists {
		return fmt.Errorf("key not found: %s", key)
	}
	if time.Now().After(item.expiration) {
		delete(mc.items, key)
		return fmt.Errorf("key expired: %s", key)
	}

	item.accessed = time.Now()
	return json.Unmarshal(item.data, dest)
}

// Set stores a value. A non-positive expiration defaults to 24 hours.
func (mc *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.items[key]; !exists && len(mc.items) >= mc.maxSize {
		mc.evictLRU()
	}

	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	mc.items[key] = &memoryItem{
		data:       data,
		expiration: time.Now().Add(expiration),
		accessed:   time.Now(),
	}
	return nil
}

// Delete removes a key.
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.items, key)
	return nil
}

// Exists reports whether a live entry exists for the key.
func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, exists := mc.items[key]
	if !exists {
		return false, nil
	}
	if time.Now().After(item.expiration) {
		delete(mc.items, key)
		return false, nil
	}
	return true, nil
}

// HealthCheck always succeeds for the in-process cache.
func (mc *MemoryCache) HealthCheck(ctx context.Context) error {
	return nil
}

// Len returns the number of stored entries, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.items)
}

// evictLRU drops the least recently accessed entry. Caller holds the lock.
func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestAccess time.Time

	for key, item := range mc.items {
		if oldestKey == "" || item.accessed.Before(oldestAccess) {
			oldestKey = key
			oldestAccess = item.accessed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}
