//go:build linux

package cachealloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Realloc resizes the mapping with mremap, letting the kernel move it.
func (m *Mmap) Realloc(buf []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mremap %d bytes: %w", size, ErrInvalidSize)
	}
	nb, err := unix.Mremap(buf, size, unix.MREMAP_MAYMOVE)
	if err != nil {
		return nil, fmt.Errorf("mremap %d to %d bytes: %w: %w", len(buf), size, ErrOutOfMemory, err)
	}
	return nb, nil
}
