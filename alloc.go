package cachealloc

import "unsafe"

// wordSize is the width of a machine word, used both for the hidden
// header and as the element size of dims blocks.
const wordSize = int(unsafe.Sizeof(uintptr(0)))

// Block is a handle to an allocation made by an Allocator. It bundles the
// true system allocation with the aligned payload inside it.
//
// The zero Block is the nil block.
type Block struct {
	raw  []byte // region returned by the System
	off  int    // payload offset within raw
	size int    // payload size in bytes
}

// IsNil reports whether b is the nil block.
func (b Block) IsNil() bool { return b.raw == nil }

// Len returns the payload size in bytes.
func (b Block) Len() int { return b.size }

// Bytes returns the payload. The slice is valid until the block is freed.
func (b Block) Bytes() []byte {
	if b.raw == nil {
		return nil
	}
	return b.raw[b.off : b.off+b.size : b.off+b.size]
}

// Addr returns the payload address, or 0 for the nil block.
func (b Block) Addr() uintptr {
	if b.raw == nil {
		return 0
	}
	return b.base() + uintptr(b.off)
}

// Base returns the address of the underlying system allocation.
func (b Block) Base() uintptr {
	if b.raw == nil {
		return 0
	}
	return b.base()
}

func (b Block) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.raw)))
}

// header points at the word immediately preceding the payload.
func (b Block) header() *uintptr {
	return (*uintptr)(unsafe.Pointer(&b.raw[b.off-wordSize]))
}

// Ints returns the payload as a slice of ints, the layout used for
// shape and stride arrays.
func (b Block) Ints() []int {
	return View[int](b)
}

// View returns the payload of b as a slice of T. Trailing bytes that do
// not fill a whole T are not part of the view. Returns nil if b holds less
// than one T.
//
// T must not contain pointers: the garbage collector does not scan block
// memory.
func View[T any](b Block) []T {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if b.raw == nil || elemSize == 0 || b.size < elemSize {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.raw[b.off])), b.size/elemSize)
}
