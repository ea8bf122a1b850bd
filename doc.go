// Package cachealloc implements a size-classed block cache for the buffers
// of an n-dimensional array library.
//
// # Overview
//
// Array code creates and destroys buffers at a very high rate, often the
// same few sizes over and over inside a loop. Sending every one of them to
// the system allocator is a measurable cost. The allocator keeps up to
// seven recently freed blocks per exact size and hands them back on the
// next request of that size:
//
//   - Data cache: array payload, 1024 byte-granular classes (0..1023 bytes)
//   - Dims cache: shape and stride arrays, 16 word-granular classes
//
// Anything larger, or freed into a full bucket, goes straight to the
// System underneath.
//
// # Basic Usage
//
//	a, err := cachealloc.New(cachealloc.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	buf, err := a.AllocData(512)
//	if err != nil {
//	    return err
//	}
//	copy(buf.Bytes(), payload)
//	defer a.FreeData(buf)
//
//	dims, err := a.AllocDims(2 * ndim) // shape + strides
//	shape := dims.Ints()[:ndim]
//
// # Alignment
//
// Every payload address is a multiple of Alignment() (16 by default). The
// allocator over-allocates by one word plus alignment-1 bytes, places the
// payload at the first aligned address past the first word, and stores the
// base address in that word. Raising the alignment with SetAlignment
// empties the data cache; blocks placed under a smaller alignment are
// released rather than reused.
//
// # Event Hook
//
// SetEventHook installs a Hook that sees every allocation, free and resize
// that reaches the System, and nothing served by the cache:
//
//	prev := a.SetEventHook(cachealloc.HookFunc(func(e cachealloc.Event) {
//	    tracker.Record(e.Old, e.New, e.Size)
//	}))
//
// Hooks run after the allocator has dropped its locks and may call back
// into it.
//
// # Backends
//
//   - Heap: the Go heap (default)
//   - Mmap: anonymous mappings via golang.org/x/sys/unix (unix only)
//   - Limit: wraps either with a budget on live bytes
//
// # Configuration
//
// LoadConfig and Default read CACHEALLOC_ALIGNMENT, CACHEALLOC_BACKEND,
// CACHEALLOC_MAX_BYTES and CACHEALLOC_LOG_LEVEL.
//
// # Thread Safety
//
// Allocator methods are safe for concurrent use. Each bucket has its own
// lock; SetAlignment, Purge and Close exclude all other calls while they
// run.
package cachealloc
