package cachealloc

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

const (
	// BucketCapacity is the number of blocks a single size class retains.
	BucketCapacity = 7

	// DataClasses is the number of byte-granular size classes in the data
	// cache; payloads of DataClasses bytes or more are never cached.
	DataClasses = 1024

	// DimClasses is the number of word-granular size classes in the dims
	// cache.
	DimClasses = 16

	// MinDims is the smallest element count handed out for dims blocks,
	// room for one shape and one stride entry.
	MinDims = 2
)

// bucket is a LIFO stack of identically sized blocks.
type bucket struct {
	mu    sync.Mutex
	n     int
	slots [BucketCapacity]Block
}

// sizeClassCache keeps recently freed blocks keyed by exact element count.
// A block parked in bucket i is always exactly i*elemSize bytes long.
type sizeClassCache struct {
	kind     Kind
	elemSize int
	buckets  []bucket
	under    *alignedAllocator

	hits      atomic.Int64
	misses    atomic.Int64
	parked    atomic.Int64
	evictions atomic.Int64
}

func newSizeClassCache(kind Kind, classes, elemSize int, under *alignedAllocator) *sizeClassCache {
	return &sizeClassCache{
		kind:     kind,
		elemSize: elemSize,
		buckets:  make([]bucket, classes),
		under:    under,
	}
}

// pop removes the most recently parked block of the given class.
func (c *sizeClassCache) pop(count int) (Block, bool) {
	bk := &c.buckets[count]
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if bk.n == 0 {
		return Block{}, false
	}
	bk.n--
	b := bk.slots[bk.n]
	bk.slots[bk.n] = Block{}
	return b, true
}

// push parks b unless its bucket is full.
func (c *sizeClassCache) push(b Block, count int) bool {
	bk := &c.buckets[count]
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if bk.n == BucketCapacity {
		return false
	}
	seal(b)
	bk.slots[bk.n] = b
	bk.n++
	return true
}

// acquire returns a block of count elements, from the cache when one is
// parked and from the aligned allocator otherwise. Parked blocks that no
// longer meet the current alignment are released on the way.
func (c *sizeClassCache) acquire(count int, bt *batch) (Block, error) {
	if count < len(c.buckets) {
		for {
			b, ok := c.pop(count)
			if !ok {
				break
			}
			unseal(b)
			if c.under.fits(b) {
				c.hits.Add(1)
				return b, nil
			}
			if err := c.evict(b, bt); err != nil {
				return Block{}, err
			}
		}
	}
	size, err := mulSize(count, c.elemSize)
	if err != nil {
		return Block{}, err
	}
	b, err := c.under.allocate(size)
	if err != nil {
		return Block{}, err
	}
	c.misses.Add(1)
	bt.add(Event{Kind: c.kind, New: b.Addr(), Size: size})
	return b, nil
}

// release parks b in its size class if there is room, otherwise queues it
// on bt for release to the System.
// The nil block is ignored.
func (c *sizeClassCache) release(b Block, count int, bt *batch) error {
	if b.IsNil() {
		return nil
	}
	if err := c.under.check(b); err != nil {
		return err
	}
	if count < len(c.buckets) && c.under.fits(b) && c.push(b, count) {
		c.parked.Add(1)
		return nil
	}
	return c.evict(b, bt)
}

// evict retires b and queues it on bt for release to the System.
func (c *sizeClassCache) evict(b Block, bt *batch) error {
	addr := b.Addr()
	if err := c.under.retire(b); err != nil {
		return err
	}
	c.evictions.Add(1)
	bt.release(c.kind, addr, b.raw)
	return nil
}

// purge empties all buckets, queueing every parked block on bt.
func (c *sizeClassCache) purge(bt *batch) error {
	var result *multierror.Error
	var drained []Block
	for i := range c.buckets {
		bk := &c.buckets[i]
		bk.mu.Lock()
		drained = append(drained, bk.slots[:bk.n]...)
		clear(bk.slots[:bk.n])
		bk.n = 0
		bk.mu.Unlock()
	}
	for _, b := range drained {
		unseal(b)
		if err := c.evict(b, bt); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
