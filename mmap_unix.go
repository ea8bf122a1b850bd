//go:build unix

package cachealloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mmap is a System backed by anonymous private memory mappings. Every
// region occupies at least one page, so it suits large buffers better than
// small ones; small sizes are mostly absorbed by the cache anyway.
//
// Freeing a region twice is undefined: the second Free touches unmapped
// memory.
type Mmap struct {
	pageSize int
}

// NewMmap returns the mmap backend.
func NewMmap() *Mmap {
	return &Mmap{pageSize: unix.Getpagesize()}
}

// PageSize returns the system page size.
func (m *Mmap) PageSize() int { return m.pageSize }

// Alloc maps size bytes of anonymous memory.
func (m *Mmap) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, ErrInvalidSize)
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w: %w", size, ErrOutOfMemory, err)
	}
	return buf, nil
}

// AllocZeroed is Alloc; anonymous mappings are zero-filled by the kernel.
func (m *Mmap) AllocZeroed(size int) ([]byte, error) {
	return m.Alloc(size)
}

// Free unmaps buf. buf must be the exact slice returned by Alloc or Realloc.
func (m *Mmap) Free(buf []byte) error {
	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("munmap %d bytes: %w", len(buf), err)
	}
	return nil
}

func newMmapSystem() (System, error) {
	return NewMmap(), nil
}
