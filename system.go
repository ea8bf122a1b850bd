package cachealloc

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// System is the allocator underneath the cache: the only place memory is
// actually obtained and returned. Regions are plain byte slices whose
// length is the size of the allocation.
//
// Realloc returns a region of the requested size whose leading
// min(len(buf), size) bytes equal those of buf. On error buf is left
// untouched and remains owned by the caller.
type System interface {
	Alloc(size int) ([]byte, error)
	AllocZeroed(size int) ([]byte, error)
	Realloc(buf []byte, size int) ([]byte, error)
	Free(buf []byte) error
}

// maxHeapAlloc mirrors the largest slice the Go runtime will attempt
// before panicking in makeslice.
const maxHeapAlloc = (1<<47)*(strconv.IntSize/64) + (1<<31-1)*(1-strconv.IntSize/64)

// Heap is a System backed by the Go heap. Free is a no-op; the memory is
// reclaimed by the garbage collector once the last reference is gone.
type Heap struct{}

// NewHeap returns the Go heap backend.
func NewHeap() *Heap { return &Heap{} }

// Alloc returns size bytes from the Go heap.
func (h *Heap) Alloc(size int) ([]byte, error) {
	if size < 0 || size > maxHeapAlloc {
		return nil, fmt.Errorf("heap alloc %d bytes: %w", size, ErrOutOfMemory)
	}
	return make([]byte, size), nil
}

// AllocZeroed is Alloc; the Go heap always hands out zeroed memory.
func (h *Heap) AllocZeroed(size int) ([]byte, error) {
	return h.Alloc(size)
}

// Realloc resizes buf in place when its capacity allows, otherwise moves it.
func (h *Heap) Realloc(buf []byte, size int) ([]byte, error) {
	if size < 0 || size > maxHeapAlloc {
		return nil, fmt.Errorf("heap realloc %d bytes: %w", size, ErrOutOfMemory)
	}
	if size <= cap(buf) {
		grown := buf[:size]
		if size > len(buf) {
			clear(grown[len(buf):])
		}
		return grown, nil
	}
	nb := make([]byte, size)
	copy(nb, buf)
	return nb, nil
}

// Free drops the region.
func (h *Heap) Free(buf []byte) error { return nil }

// Limited wraps a System with a budget on live bytes. Requests that would
// exceed the budget fail with ErrOutOfMemory without reaching the wrapped
// System.
type Limited struct {
	sys  System
	max  int64
	live atomic.Int64
}

// Limit returns sys constrained to maxBytes of live allocations.
func Limit(sys System, maxBytes int64) *Limited {
	return &Limited{sys: sys, max: maxBytes}
}

// Live returns the number of bytes currently allocated through l.
func (l *Limited) Live() int64 { return l.live.Load() }

// Max returns the budget.
func (l *Limited) Max() int64 { return l.max }

func (l *Limited) reserve(n int64) bool {
	for {
		cur := l.live.Load()
		if cur+n > l.max {
			return false
		}
		if l.live.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

func (l *Limited) alloc(size int, fn func(int) ([]byte, error)) ([]byte, error) {
	if size < 0 || !l.reserve(int64(size)) {
		return nil, fmt.Errorf("limit %d bytes exceeded by %d: %w", l.max, size, ErrOutOfMemory)
	}
	buf, err := fn(size)
	if err != nil {
		l.live.Add(-int64(size))
		return nil, err
	}
	return buf, nil
}

// Alloc allocates through the wrapped System if the budget allows.
func (l *Limited) Alloc(size int) ([]byte, error) {
	return l.alloc(size, l.sys.Alloc)
}

// AllocZeroed allocates zeroed memory through the wrapped System if the budget allows.
func (l *Limited) AllocZeroed(size int) ([]byte, error) {
	return l.alloc(size, l.sys.AllocZeroed)
}

// Realloc resizes buf, charging or refunding the size difference.
func (l *Limited) Realloc(buf []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("limit realloc %d bytes: %w", size, ErrOutOfMemory)
	}
	delta := int64(size - len(buf))
	if delta > 0 && !l.reserve(delta) {
		return nil, fmt.Errorf("limit %d bytes exceeded by %d: %w", l.max, delta, ErrOutOfMemory)
	}
	nb, err := l.sys.Realloc(buf, size)
	if err != nil {
		if delta > 0 {
			l.live.Add(-delta)
		}
		return nil, err
	}
	if delta < 0 {
		l.live.Add(delta)
	}
	return nb, nil
}

// Free returns buf to the wrapped System and refunds its size.
func (l *Limited) Free(buf []byte) error {
	if err := l.sys.Free(buf); err != nil {
		return err
	}
	l.live.Add(-int64(len(buf)))
	return nil
}
