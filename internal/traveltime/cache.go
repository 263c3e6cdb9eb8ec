// Package traveltime memoizes one resolved travel time per school.
// This is what keeps the transit-API call volume at O(schools) instead
// of O(schools x programs x study paths).
package traveltime

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/me97esn/gymnasieskolor/internal/domain"
)

// ResolveFunc performs the actual lookup: stop search, trip planning,
// duration parsing. It returns NotAvailable for valid empty outcomes
// and an error only for cancellation (which must not be memoized).
type ResolveFunc func(ctx context.Context) (domain.Minutes, error)

// Cache is write-once-per-key. Concurrent requests for the same school
// collapse into a single in-flight resolution; late arrivals get the
// memoized value, including a memoized NotAvailable.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.Minutes
	flight  singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]domain.Minutes)}
}

// GetOrResolve returns the cached travel time for schoolID, invoking
// fn at most once per process lifetime for that key.
func (c *Cache) GetOrResolve(ctx context.Context, schoolID string, fn ResolveFunc) (domain.Minutes, error) {
	c.mu.RLock()
	if m, ok := c.entries[schoolID]; ok {
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.flight.Do(schoolID, func() (any, error) {
		// Re-check under the flight: a previous flight may have
		// stored the value between our read and Do.
		c.mu.RLock()
		m, ok := c.entries[schoolID]
		c.mu.RUnlock()
		if ok {
			return m, nil
		}

		m, err := fn(ctx)
		if err != nil {
			return domain.NotAvailable, err
		}

		c.mu.Lock()
		c.entries[schoolID] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return domain.NotAvailable, err
	}
	return v.(domain.Minutes), nil
}

// Len reports how many schools have a memoized value. For summaries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
