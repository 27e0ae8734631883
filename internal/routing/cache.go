package routing

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// CacheStats summarizes the directions cache.
type CacheStats struct {
	TotalEntries int    `json:"totalEntries"`
	FreshEntries int    `json:"freshEntries"`
	StaleEntries int    `json:"staleEntries"`
	Provider     string `json:"provider"`
}

type cacheEntry struct {
	response  *DirectionsResponse
	fetchedAt time.Time
}

// directionsCache holds provider answers keyed by grid cell. An entry is
// fresh for ttl and usable as a fallback until staleFor has passed.
type directionsCache struct {
	grid       float64
	ttl        time.Duration
	staleFor   time.Duration
	sweepEvery time.Duration

	mu        sync.RWMutex
	entries   map[string]cacheEntry
	lastSweep time.Time
}

func newDirectionsCache(grid float64, ttl, staleFor, sweepEvery time.Duration) *directionsCache {
	return &directionsCache{
		grid:       grid,
		ttl:        ttl,
		staleFor:   staleFor,
		sweepEvery: sweepEvery,
		entries:    make(map[string]cacheEntry),
	}
}

// key renders profile:alternatives:oLat,oLon:dLat,dLon with each coordinate
// floored to the grid.
func (c *directionsCache) key(req DirectionsRequest) string {
	return fmt.Sprintf("%s:%d:%.6f,%.6f:%.6f,%.6f", req.Profile, req.MaxAlternatives,
		c.floor(req.Origin.Lat), c.floor(req.Origin.Lon),
		c.floor(req.Destination.Lat), c.floor(req.Destination.Lon))
}

// The epsilon keeps values already on a grid line from dropping a cell to
// float error.
func (c *directionsCache) floor(v float64) float64 {
	return math.Floor(v/c.grid+1e-9) * c.grid
}

func (c *directionsCache) lookup(key string, now time.Time, maxAge time.Duration) (cacheEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !now.Before(e.fetchedAt.Add(maxAge)) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *directionsCache) fresh(key string, now time.Time) (*DirectionsResponse, bool) {
	e, ok := c.lookup(key, now, c.ttl)
	return e.response, ok
}

func (c *directionsCache) stale(key string, now time.Time) (cacheEntry, bool) {
	return c.lookup(key, now, c.staleFor)
}

// put stores resp and sweeps dead entries at most once per sweepEvery. It
// returns the number of entries swept.
func (c *directionsCache) put(key string, resp *DirectionsResponse, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{response: resp, fetchedAt: now}

	if now.Sub(c.lastSweep) < c.sweepEvery {
		return 0
	}
	c.lastSweep = now
	swept := 0
	for k, e := range c.entries {
		if now.After(e.fetchedAt.Add(c.staleFor)) {
			delete(c.entries, k)
			swept++
		}
	}
	return swept
}

func (c *directionsCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	return n
}

func (c *directionsCache) stats(now time.Time) CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := CacheStats{TotalEntries: len(c.entries)}
	for _, e := range c.entries {
		switch {
		case now.Before(e.fetchedAt.Add(c.ttl)):
			st.FreshEntries++
		case now.Before(e.fetchedAt.Add(c.staleFor)):
			st.StaleEntries++
		}
	}
	return st
}
