package cachealloc

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"unsafe"
)

// MinAlignment is the smallest accepted alignment, enough for every
// built-in numeric type including complex128.
const MinAlignment = 16

// alignedAllocator wraps a System so every payload starts on an address
// that is a multiple of align. Each request is over-allocated by one word
// plus align-1 bytes; the payload goes at the lowest aligned address at
// least one word past the base, and that word records the base address.
//
// align is guarded by Allocator.geom.
type alignedAllocator struct {
	sys   System
	align int
}

func validateAlignment(align int) error {
	if align < MinAlignment || align&(align-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAlignment, align)
	}
	return nil
}

// mulSize returns count*elemSize, failing with ErrSizeOverflow if the
// product does not fit in an int.
func mulSize(count, elemSize int) (int, error) {
	if count < 0 || elemSize < 0 {
		return 0, fmt.Errorf("%d x %d: %w", count, elemSize, ErrInvalidSize)
	}
	hi, lo := bits.Mul(uint(count), uint(elemSize))
	if hi != 0 || lo > math.MaxInt {
		return 0, fmt.Errorf("%d x %d: %w", count, elemSize, ErrSizeOverflow)
	}
	return int(lo), nil
}

// padded returns the system allocation size needed to place size bytes
// with at least pad bytes in front of them.
func padded(size, pad int) (int, error) {
	if size > math.MaxInt-pad {
		return 0, fmt.Errorf("%d bytes plus %d padding: %w", size, pad, ErrSizeOverflow)
	}
	return size + pad, nil
}

func (a *alignedAllocator) pad() int {
	return wordSize + a.align - 1
}

// offsetFor returns the payload offset inside raw for the current alignment.
func (a *alignedAllocator) offsetFor(raw []byte) int {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	mask := uintptr(a.align - 1)
	aligned := (base + uintptr(wordSize) + mask) &^ mask
	return int(aligned - base)
}

func (a *alignedAllocator) place(raw []byte, size int) Block {
	b := Block{raw: raw, off: a.offsetFor(raw), size: size}
	*b.header() = b.base()
	return b
}

func asOOM(err error) error {
	if errors.Is(err, ErrOutOfMemory) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
}

func (a *alignedAllocator) allocate(size int) (Block, error) {
	if size < 0 {
		return Block{}, fmt.Errorf("allocate %d bytes: %w", size, ErrInvalidSize)
	}
	total, err := padded(size, a.pad())
	if err != nil {
		return Block{}, err
	}
	raw, err := a.sys.Alloc(total)
	if err != nil {
		return Block{}, asOOM(err)
	}
	return a.place(raw, size), nil
}

// allocateZeroed checks count*elemSize for overflow before anything
// reaches the System.
func (a *alignedAllocator) allocateZeroed(count, elemSize int) (Block, error) {
	size, err := mulSize(count, elemSize)
	if err != nil {
		return Block{}, err
	}
	total, err := padded(size, a.pad())
	if err != nil {
		return Block{}, err
	}
	raw, err := a.sys.AllocZeroed(total)
	if err != nil {
		return Block{}, asOOM(err)
	}
	return a.place(raw, size), nil
}

// check verifies that b is a live block produced by this allocator.
func (a *alignedAllocator) check(b Block) error {
	if b.raw == nil || b.off < wordSize || b.off+b.size > len(b.raw) || *b.header() != b.base() {
		return ErrBadBlock
	}
	return nil
}

// reallocate resizes b. When the base or the aligned offset changes the
// payload is moved with an overlap-safe copy. On failure b stays valid.
func (a *alignedAllocator) reallocate(b Block, size int) (Block, error) {
	if err := a.check(b); err != nil {
		return Block{}, err
	}
	if size < 0 {
		return Block{}, fmt.Errorf("reallocate %d bytes: %w", size, ErrInvalidSize)
	}
	// The old payload must still be addressable at its old offset inside
	// the resized region, even if alignment shrank since it was placed.
	pad := max(a.pad(), b.off)
	total, err := padded(size, pad)
	if err != nil {
		return Block{}, err
	}
	raw, err := a.sys.Realloc(b.raw, total)
	if err != nil {
		return Block{}, asOOM(err)
	}
	off := a.offsetFor(raw)
	if off != b.off {
		keep := min(b.size, size)
		copy(raw[off:off+keep], raw[b.off:b.off+keep])
	}
	nb := Block{raw: raw, off: off, size: size}
	*nb.header() = nb.base()
	return nb, nil
}

// retire invalidates the header of b so later frees of it are rejected.
// The caller returns b.raw to the System.
func (a *alignedAllocator) retire(b Block) error {
	if err := a.check(b); err != nil {
		return err
	}
	*b.header() = 0
	return nil
}

func (a *alignedAllocator) free(b Block) error {
	if err := a.retire(b); err != nil {
		return err
	}
	return a.sys.Free(b.raw)
}

// fits reports whether b satisfies the current alignment.
func (a *alignedAllocator) fits(b Block) bool {
	return b.Addr()&uintptr(a.align-1) == 0
}

// seal and unseal flip the header of a block parked in a cache bucket so a
// second free of the same block is caught instead of caching it twice.
func seal(b Block)   { *b.header() = ^b.base() }
func unseal(b Block) { *b.header() = b.base() }
