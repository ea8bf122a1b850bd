package cachealloc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory indicates the system allocator refused the request.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrInvalidAlignment indicates an alignment that is not a power of two
	// or is below MinAlignment.
	ErrInvalidAlignment = errors.New("alloc: invalid alignment")

	// ErrSizeOverflow indicates count*elemSize does not fit in an int.
	// It matches ErrOutOfMemory under errors.Is.
	ErrSizeOverflow = fmt.Errorf("alloc: size overflow: %w", ErrOutOfMemory)

	// ErrInvalidSize indicates a negative size or count.
	ErrInvalidSize = errors.New("alloc: invalid size")

	// ErrBadBlock indicates a block whose header does not match its base
	// allocation, i.e. one not produced by this allocator or already released.
	ErrBadBlock = errors.New("alloc: bad block")

	// ErrClosed indicates use of an allocator after Close.
	ErrClosed = errors.New("alloc: allocator closed")
)
