package cachealloc

import "sync/atomic"

// Kind tells which cache an event came from.
type Kind uint8

const (
	KindData Kind = iota + 1 // array payload buffers
	KindDims                 // shape and stride arrays
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindDims:
		return "dims"
	default:
		return "unknown"
	}
}

// Event describes one call that reached the System:
//
//	allocation: Old == 0, New == address, Size == bytes
//	free:       Old == address, New == 0, Size == 0
//	resize:     Old == previous address, New == new address, Size == bytes
//
// Cache hits and blocks parked in the cache produce no event.
type Event struct {
	Kind Kind
	Old  uintptr
	New  uintptr
	Size int
}

// IsAlloc reports whether e records a fresh allocation.
func (e Event) IsAlloc() bool { return e.Old == 0 && e.New != 0 }

// IsFree reports whether e records a release to the System.
func (e Event) IsFree() bool { return e.Old != 0 && e.New == 0 }

// IsResize reports whether e records a reallocation.
func (e Event) IsResize() bool { return e.Old != 0 && e.New != 0 }

// Hook observes allocator traffic that escapes the cache.
//
// Hooks are called after the allocator has released all of its locks, so
// a hook may allocate, free, swap hooks or change the alignment through the
// same Allocator. Such nested calls produce their own events, delivered to
// whichever hook is installed at that point. A hook may be called from
// several goroutines at once.
//
// A free event is delivered before the memory goes back to the System, so
// a hook never sees an address allocated while it still holds it as live.
// Allocation events arrive after the memory was obtained. A resize that
// moves a block releases the old region inside the System, so the old
// address may be handed out again before the resize event arrives.
type Hook interface {
	OnEvent(Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(Event)

// OnEvent calls f(e).
func (f HookFunc) OnEvent(e Event) { f(e) }

type nopHook struct{}

func (nopHook) OnEvent(Event) {}

// hookSlot boxes a Hook so it can be swapped atomically as one value.
type hookSlot struct {
	h Hook
}

type hookRegistry struct {
	cur atomic.Pointer[hookSlot]
}

// swap installs h and returns the previous hook, nil if none was set.
// Installing nil removes the hook.
func (r *hookRegistry) swap(h Hook) Hook {
	var next *hookSlot
	if h != nil {
		next = &hookSlot{h: h}
	}
	prev := r.cur.Swap(next)
	if prev == nil {
		return nil
	}
	return prev.h
}

func (r *hookRegistry) load() Hook {
	if s := r.cur.Load(); s != nil {
		return s.h
	}
	return nopHook{}
}

// batch collects the System traffic of one operation. Its events are
// delivered once the allocator's locks are released. Regions headed back to
// the System are held until their free events have been delivered, so an
// address is never reported allocated again before its release is seen.
type batch struct {
	events []Event
	frees  [][]byte
}

func (bt *batch) add(e Event) { bt.events = append(bt.events, e) }

// release records the free of the block at addr and queues its region.
func (bt *batch) release(kind Kind, addr uintptr, raw []byte) {
	bt.add(Event{Kind: kind, Old: addr})
	bt.frees = append(bt.frees, raw)
}

func (bt *batch) deliver(h Hook) {
	for _, e := range bt.events {
		h.OnEvent(e)
	}
}
