package cachealloc

// CacheMetrics is a snapshot of one size-class cache.
type CacheMetrics struct {
	Classes      int   // Number of size classes
	Hits         int64 // Requests served from a bucket
	Misses       int64 // Requests that reached the System
	Parked       int64 // Frees absorbed by a bucket
	Evictions    int64 // Blocks released to the System by free or purge
	CachedBlocks int   // Blocks currently parked
	CachedBytes  int   // Payload bytes currently parked
}

// HitRate returns the ratio of hits to requests (0.0 to 1.0).
// Returns 0.0 if nothing was requested.
func (m CacheMetrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Metrics is a snapshot of an Allocator.
type Metrics struct {
	Alignment int
	Data      CacheMetrics
	Dims      CacheMetrics

	// LiveBytes is the number of bytes held from the System, or -1 when the
	// System is not wrapped with Limit.
	LiveBytes int64
}

func (c *sizeClassCache) metrics() CacheMetrics {
	m := CacheMetrics{
		Classes:   len(c.buckets),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Parked:    c.parked.Load(),
		Evictions: c.evictions.Load(),
	}
	for i := range c.buckets {
		bk := &c.buckets[i]
		bk.mu.Lock()
		n := bk.n
		bk.mu.Unlock()
		m.CachedBlocks += n
		m.CachedBytes += n * i * c.elemSize
	}
	return m
}

// Metrics returns a snapshot of cache and system statistics.
func (a *Allocator) Metrics() Metrics {
	a.geom.RLock()
	defer a.geom.RUnlock()
	m := Metrics{
		Alignment: a.aligned.align,
		Data:      a.data.metrics(),
		Dims:      a.dims.metrics(),
		LiveBytes: -1,
	}
	if l, ok := a.aligned.sys.(*Limited); ok {
		m.LiveBytes = l.Live()
	}
	return m
}
