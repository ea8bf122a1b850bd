package cachealloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorMetrics(t *testing.T) {
	a, _ := newTestAllocator(t)

	m := a.Metrics()
	assert.Equal(t, MinAlignment, m.Alignment)
	assert.Equal(t, DataClasses, m.Data.Classes)
	assert.Equal(t, DimClasses, m.Dims.Classes)
	assert.Equal(t, int64(-1), m.LiveBytes)
	assert.Zero(t, m.Data.HitRate())

	b1, err := a.AllocData(100)
	require.NoError(t, err)
	b2, err := a.AllocData(200)
	require.NoError(t, err)
	require.NoError(t, a.FreeData(b1))
	require.NoError(t, a.FreeData(b2))
	_, err = a.AllocData(100)
	require.NoError(t, err)

	d, err := a.AllocDims(3)
	require.NoError(t, err)
	require.NoError(t, a.FreeDims(d))

	m = a.Metrics()
	assert.Equal(t, int64(1), m.Data.Hits)
	assert.Equal(t, int64(2), m.Data.Misses)
	assert.Equal(t, int64(2), m.Data.Parked)
	assert.Zero(t, m.Data.Evictions)
	assert.Equal(t, 1, m.Data.CachedBlocks)
	assert.Equal(t, 200, m.Data.CachedBytes)
	assert.InDelta(t, 1.0/3.0, m.Data.HitRate(), 1e-9)

	assert.Equal(t, int64(1), m.Dims.Misses)
	assert.Equal(t, 1, m.Dims.CachedBlocks)
	assert.Equal(t, 3*wordSize, m.Dims.CachedBytes)

	require.NoError(t, a.Purge())
	m = a.Metrics()
	assert.Zero(t, m.Data.CachedBlocks)
	assert.Zero(t, m.Data.CachedBytes)
	assert.Equal(t, int64(1), m.Data.Evictions)
	assert.Equal(t, int64(1), m.Dims.Evictions)
}

func TestMetricsLiveBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBytes = 1 << 20
	cfg.LogLevel = "error"
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Zero(t, a.Metrics().LiveBytes)

	b, err := a.AllocData(1000)
	require.NoError(t, err)
	want := int64(1000 + wordSize + MinAlignment - 1)
	assert.Equal(t, want, a.Metrics().LiveBytes)

	// Parked blocks still hold system memory.
	require.NoError(t, a.FreeData(b))
	assert.Equal(t, want, a.Metrics().LiveBytes)

	require.NoError(t, a.Purge())
	assert.Zero(t, a.Metrics().LiveBytes)
}

func TestCacheMetricsHitRate(t *testing.T) {
	tests := []struct {
		name string
		m    CacheMetrics
		want float64
	}{
		{"empty", CacheMetrics{}, 0},
		{"all hits", CacheMetrics{Hits: 4}, 1},
		{"all misses", CacheMetrics{Misses: 4}, 0},
		{"mixed", CacheMetrics{Hits: 3, Misses: 1}, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.m.HitRate(), 1e-9)
		})
	}
}
