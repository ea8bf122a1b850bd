package cachealloc

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Allocator serves array payload (data) and shape/stride (dims) buffers
// from two size-classed caches layered over an aligned System allocator.
//
// All methods are safe for concurrent use. Bucket operations lock only
// their own bucket; alignment changes and Close exclude every other call.
type Allocator struct {
	// geom guards the alignment and the closed flag. Every operation holds
	// the read side; SetAlignment and Close hold the write side.
	geom   sync.RWMutex
	closed bool

	aligned *alignedAllocator
	data    *sizeClassCache
	dims    *sizeClassCache
	hooks   hookRegistry
	log     *logrus.Entry
}

// Option customizes an Allocator built by New.
type Option func(*Allocator)

// WithSystem replaces the System selected by Config.Backend. Config.MaxBytes
// is not applied to it; wrap it with Limit instead.
func WithSystem(sys System) Option {
	return func(a *Allocator) { a.aligned.sys = sys }
}

// WithLogger replaces the logger built from Config.LogLevel.
func WithLogger(l *logrus.Entry) Option {
	return func(a *Allocator) { a.log = l }
}

// WithHook installs h as the initial event hook.
func WithHook(h Hook) Option {
	return func(a *Allocator) { a.hooks.swap(h) }
}

// New builds an Allocator from cfg.
func New(cfg Config, opts ...Option) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sys, err := cfg.system()
	if err != nil {
		return nil, err
	}
	l, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	aligned := &alignedAllocator{sys: sys, align: cfg.alignment()}
	a := &Allocator{
		aligned: aligned,
		data:    newSizeClassCache(KindData, DataClasses, 1, aligned),
		dims:    newSizeClassCache(KindDims, DimClasses, wordSize, aligned),
		log:     l,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log.WithFields(logrus.Fields{
		"alignment": aligned.align,
		"system":    fmt.Sprintf("%T", aligned.sys),
	}).Debug("allocator ready")
	return a, nil
}

// settle delivers the events of bt to the current hook, then returns the
// regions it holds to the System. It runs with no allocator lock held.
func (a *Allocator) settle(bt *batch) error {
	if len(bt.events) > 0 {
		bt.deliver(a.hooks.load())
	}
	var result *multierror.Error
	for _, raw := range bt.frees {
		if err := a.aligned.sys.Free(raw); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// settleStale settles an allocating call, whose only frees are parked
// blocks that missed the current alignment.
func (a *Allocator) settleStale(bt *batch) {
	if err := a.settle(bt); err != nil {
		a.log.WithError(err).Warn("releasing stale blocks failed")
	}
}

// AllocData returns a block of size bytes for array payload. Sizes below
// DataClasses are served from the cache when possible.
func (a *Allocator) AllocData(size int) (Block, error) {
	if size < 0 {
		return Block{}, fmt.Errorf("alloc data %d bytes: %w", size, ErrInvalidSize)
	}
	var bt batch
	a.geom.RLock()
	if a.closed {
		a.geom.RUnlock()
		return Block{}, ErrClosed
	}
	b, err := a.data.acquire(size, &bt)
	a.geom.RUnlock()
	a.settleStale(&bt)
	return b, err
}

// AllocDataZeroed returns a zero-filled block of count*elemSize bytes. An
// overflowing product fails with ErrSizeOverflow before any memory is
// requested.
func (a *Allocator) AllocDataZeroed(count, elemSize int) (Block, error) {
	if size, err := mulSize(count, elemSize); err == nil && size < DataClasses {
		b, err := a.AllocData(size)
		if err != nil {
			return Block{}, err
		}
		clear(b.Bytes())
		return b, nil
	}
	var bt batch
	a.geom.RLock()
	if a.closed {
		a.geom.RUnlock()
		return Block{}, ErrClosed
	}
	b, err := a.aligned.allocateZeroed(count, elemSize)
	if err == nil {
		a.data.misses.Add(1)
		bt.add(Event{Kind: KindData, New: b.Addr(), Size: b.Len()})
	}
	a.geom.RUnlock()
	a.settleStale(&bt)
	return b, err
}

// FreeData returns a data block. Its size class is its length. The nil
// block is ignored.
func (a *Allocator) FreeData(b Block) error {
	return a.release(a.data, b, b.Len())
}

// ReallocData resizes a data block, preserving the first min(old, new)
// bytes and the current alignment. Reallocation always reaches the System.
// On failure b is left valid and unchanged. Reallocating the nil block
// allocates.
func (a *Allocator) ReallocData(b Block, size int) (Block, error) {
	var bt batch
	a.geom.RLock()
	if a.closed {
		a.geom.RUnlock()
		return Block{}, ErrClosed
	}
	var (
		nb  Block
		err error
	)
	if b.IsNil() {
		nb, err = a.aligned.allocate(size)
	} else {
		nb, err = a.aligned.reallocate(b, size)
	}
	if err == nil {
		bt.add(Event{Kind: KindData, Old: b.Addr(), New: nb.Addr(), Size: size})
	}
	a.geom.RUnlock()
	a.settleStale(&bt)
	return nb, err
}

// AllocDims returns a block of count words for shape and stride arrays.
// Counts below MinDims are raised to MinDims.
func (a *Allocator) AllocDims(count int) (Block, error) {
	if count < 0 {
		return Block{}, fmt.Errorf("alloc dims %d: %w", count, ErrInvalidSize)
	}
	count = max(count, MinDims)
	var bt batch
	a.geom.RLock()
	if a.closed {
		a.geom.RUnlock()
		return Block{}, ErrClosed
	}
	b, err := a.dims.acquire(count, &bt)
	a.geom.RUnlock()
	a.settleStale(&bt)
	return b, err
}

// FreeDims returns a dims block. The nil block is ignored.
func (a *Allocator) FreeDims(b Block) error {
	return a.release(a.dims, b, max(b.Len()/wordSize, MinDims))
}

func (a *Allocator) release(c *sizeClassCache, b Block, count int) error {
	if b.IsNil() {
		return nil
	}
	var (
		bt  batch
		err error
	)
	a.geom.RLock()
	if a.closed {
		addr := b.Addr()
		if err = a.aligned.retire(b); err == nil {
			bt.release(c.kind, addr, b.raw)
		}
	} else {
		err = c.release(b, count, &bt)
	}
	a.geom.RUnlock()
	if serr := a.settle(&bt); serr != nil {
		return serr
	}
	return err
}

// Alignment returns the current payload alignment.
func (a *Allocator) Alignment() int {
	a.geom.RLock()
	defer a.geom.RUnlock()
	return a.aligned.align
}

// SetAlignment changes the alignment of blocks handed out from now on.
// align must be a power of two no smaller than MinAlignment; otherwise
// ErrInvalidAlignment is returned and nothing changes. Raising the
// alignment empties the data cache.
func (a *Allocator) SetAlignment(align int) error {
	if err := validateAlignment(align); err != nil {
		return err
	}
	var bt batch
	a.geom.Lock()
	prev := a.aligned.align
	var err error
	if align > prev {
		err = a.data.purge(&bt)
	}
	a.aligned.align = align
	a.geom.Unlock()
	err = multierror.Append(err, a.settle(&bt)).ErrorOrNil()

	entry := a.log.WithFields(logrus.Fields{"from": prev, "to": align, "purged": len(bt.frees)})
	if err != nil {
		entry.WithError(err).Warn("alignment changed, purge incomplete")
	} else {
		entry.Debug("alignment changed")
	}
	return nil
}

// SetEventHook installs h and returns the hook it replaced, or nil.
// Passing nil removes the hook. A replaced hook may still be running on
// other goroutines when SetEventHook returns.
func (a *Allocator) SetEventHook(h Hook) Hook {
	return a.hooks.swap(h)
}

// Purge releases every cached block of both caches to the System.
func (a *Allocator) Purge() error {
	var bt batch
	a.geom.Lock()
	err := a.purgeLocked(&bt)
	a.geom.Unlock()
	return multierror.Append(err, a.settle(&bt)).ErrorOrNil()
}

// purgeLocked empties both caches into bt. The caller holds geom for
// writing and settles bt after unlocking.
func (a *Allocator) purgeLocked(bt *batch) error {
	var result *multierror.Error
	if err := a.data.purge(bt); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.dims.purge(bt); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Close purges both caches. Afterwards allocations fail with ErrClosed and
// frees go straight to the System. Closing twice is a no-op.
func (a *Allocator) Close() error {
	var bt batch
	a.geom.Lock()
	if a.closed {
		a.geom.Unlock()
		return nil
	}
	a.closed = true
	err := a.purgeLocked(&bt)
	a.geom.Unlock()
	err = multierror.Append(err, a.settle(&bt)).ErrorOrNil()

	entry := a.log.WithField("purged", len(bt.frees))
	if err != nil {
		entry.WithError(err).Warn("allocator closed, purge incomplete")
		return fmt.Errorf("close: %w", err)
	}
	entry.Debug("allocator closed")
	return nil
}
