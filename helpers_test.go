package cachealloc

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder is a Hook that keeps every event it sees.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) count(match func(Event) bool) int {
	n := 0
	for _, e := range r.all() {
		if match(e) {
			n++
		}
	}
	return n
}

// countingSystem counts calls reaching the Go heap.
type countingSystem struct {
	Heap
	allocs   atomic.Int64
	reallocs atomic.Int64
	frees    atomic.Int64
}

func (s *countingSystem) Alloc(size int) ([]byte, error) {
	s.allocs.Add(1)
	return s.Heap.Alloc(size)
}

func (s *countingSystem) AllocZeroed(size int) ([]byte, error) {
	s.allocs.Add(1)
	return s.Heap.AllocZeroed(size)
}

func (s *countingSystem) Realloc(buf []byte, size int) ([]byte, error) {
	s.reallocs.Add(1)
	return s.Heap.Realloc(buf, size)
}

func (s *countingSystem) Free(buf []byte) error {
	s.frees.Add(1)
	return s.Heap.Free(buf)
}

// shiftingSystem always moves on Realloc, and places the new region shift
// bytes into a fresh buffer so the aligned offset changes.
type shiftingSystem struct {
	Heap
	shift int
}

func (s *shiftingSystem) Realloc(buf []byte, size int) ([]byte, error) {
	big := make([]byte, size+s.shift)
	nb := big[s.shift : s.shift+size : s.shift+size]
	copy(nb, buf)
	return nb, nil
}

// recyclingSystem hands freed regions straight back out, so a released
// address is reused by the next allocation of the same size.
type recyclingSystem struct {
	Heap
	mu   sync.Mutex
	free map[int][][]byte
}

func (s *recyclingSystem) Alloc(size int) ([]byte, error) {
	s.mu.Lock()
	if l := s.free[size]; len(l) > 0 {
		buf := l[len(l)-1]
		s.free[size] = l[:len(l)-1]
		s.mu.Unlock()
		return buf, nil
	}
	s.mu.Unlock()
	return s.Heap.Alloc(size)
}

func (s *recyclingSystem) Free(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.free == nil {
		s.free = make(map[int][][]byte)
	}
	s.free[len(buf)] = append(s.free[len(buf)], buf)
	return nil
}

// liveTracker follows addresses the way an allocation tracker would and
// counts events that contradict what it has seen so far.
type liveTracker struct {
	mu        sync.Mutex
	live      map[uintptr]bool
	anomalies int
}

func newLiveTracker() *liveTracker {
	return &liveTracker{live: make(map[uintptr]bool)}
}

func (lt *liveTracker) OnEvent(e Event) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if e.Old != 0 {
		if !lt.live[e.Old] {
			lt.anomalies++
		}
		delete(lt.live, e.Old)
	}
	if e.New != 0 {
		if lt.live[e.New] {
			lt.anomalies++
		}
		lt.live[e.New] = true
	}
}

func (lt *liveTracker) result() (anomalies, live int) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.anomalies, len(lt.live)
}

// churn runs workers goroutines that allocate and free data blocks, both
// above the cached range and in amounts that overflow a bucket.
func churn(t *testing.T, a *Allocator, workers, rounds int) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held := make([]Block, 0, BucketCapacity+3)
			for i := 0; i < rounds; i++ {
				big, err := a.AllocData(4096)
				if err != nil {
					errs <- err
					return
				}
				small, err := a.AllocData(100)
				if err != nil {
					errs <- err
					return
				}
				held = append(held, small)
				if err := a.FreeData(big); err != nil {
					errs <- err
					return
				}
				if len(held) == cap(held) {
					for _, b := range held {
						if err := a.FreeData(b); err != nil {
							errs <- err
							return
						}
					}
					held = held[:0]
				}
			}
			for _, b := range held {
				if err := a.FreeData(b); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

// newTestAllocator builds a quiet Allocator with a recording hook.
func newTestAllocator(t testing.TB, opts ...Option) (*Allocator, *recorder) {
	t.Helper()
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	a, err := New(cfg, append([]Option{WithHook(rec)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, rec
}

func fill(b []byte, seed byte) {
	for i := range b {
		b[i] = seed + byte(i)
	}
}

func requireFilled(t testing.TB, b []byte, seed byte) {
	t.Helper()
	for i := range b {
		if b[i] != seed+byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, b[i], seed+byte(i))
		}
	}
}
