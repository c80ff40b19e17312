// Package physical implements a binary buddy allocator for fixed-size
// physical page frames. It is the bottom-level physical page allocator a
// kernel's slab/object allocators and per-process virtual-memory code sit
// on top of: callers ask for a contiguous run of pages and get back a
// starting page index, never an address, a file descriptor, or anything
// that requires this package to own more than indices into an external
// page-frame array.
package physical

import (
	"sync"

	kernelErrors "github.com/lzuos/buddy/kernel/errors"
	"github.com/lzuos/buddy/kernel/mem"
)

// DefaultMaxOrder and DefaultNumPages size the package-level Kernel
// singleton below. A real kernel would instead compile these in as its own
// constants; 2^15 pages of 4 KiB each is 128 MiB.
const (
	DefaultMaxOrder = 15
	DefaultNumPages = 1 << DefaultMaxOrder
)

var (
	// ErrInvalidSize is returned by Acquire when n is not a positive
	// integer in [1, 2^MaxOrder].
	ErrInvalidSize = kernelErrors.KernelError("invalid page count")

	// ErrInvalidRelease is returned by Release when p does not name a
	// currently outstanding allocation (double-free, wild index, or an
	// index that was never returned by Acquire).
	ErrInvalidRelease = kernelErrors.KernelError("invalid release: page not allocated")

	// ErrInvalidConfig is returned by New when NumPages exceeds what
	// MaxOrder can address.
	ErrInvalidConfig = kernelErrors.KernelError("invalid allocator configuration")
)

// Config sizes an Allocator at construction time: chosen once by the
// embedder, never changed for the lifetime of the resulting Allocator.
type Config struct {
	// MaxOrder is the highest order the allocator will manage; the
	// largest possible block is 2^MaxOrder pages.
	MaxOrder mem.PageOrder

	// NumPages is the number of manageable page frames. It must satisfy
	// NumPages <= 1<<MaxOrder. If it is strictly less, the pages in
	// [NumPages, 1<<MaxOrder) are marked permanently allocated during
	// Init and are never handed out.
	NumPages uint32
}

// Allocator is the buddy-bookkeeping aggregate: the page-state bitmap, the
// order-indexed free index, and the allocation ledger, plus the mutex that
// serializes access to all three. A single-threaded caller could instead run
// with interrupts disabled during its critical section; this module, not
// being embedded in assembly-booted kernel code, always takes a lock
// instead.
type Allocator struct {
	mu sync.Mutex

	maxOrder mem.PageOrder
	numPages uint32

	bitmap pageBitmap
	free   *freeIndex
	ledger *ledger

	// OnEvent, if set, is invoked for every allocator event. See Event.
	OnEvent OnEvent
}

// Kernel is a ready-to-Init buddy allocator sized by DefaultMaxOrder and
// DefaultNumPages: a real kernel has exactly one physical memory subsystem,
// so a convenience singleton is provided alongside New for callers (tests,
// alternate arena sizes) that want their own instance.
var Kernel = MustNew(Config{MaxOrder: DefaultMaxOrder, NumPages: DefaultNumPages})

// New validates cfg and allocates (once, here, not during any later
// Acquire/Release) the fixed-size backing arrays the allocator needs. The
// returned Allocator is not yet usable until Init is called.
func New(cfg Config) (*Allocator, error) {
	if cfg.NumPages == 0 || cfg.NumPages > uint32(1)<<cfg.MaxOrder {
		return nil, ErrInvalidConfig
	}

	return &Allocator{
		maxOrder: cfg.MaxOrder,
		numPages: cfg.NumPages,
		bitmap:   newPageBitmap(uint32(1) << cfg.MaxOrder),
		free:     newFreeIndex(cfg.MaxOrder, uint32(1)<<cfg.MaxOrder),
		ledger:   newLedger(uint32(1) << cfg.MaxOrder),
	}, nil
}

// MustNew is New, panicking on error. Intended for package-level
// singletons (see Kernel) where a bad Config is a boot-time programming
// error, not a runtime condition to recover from.
func MustNew(cfg Config) *Allocator {
	a, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return a
}

// Init establishes the single top-order free block covering the entire
// arena and zeros the bitmap. If NumPages is less than 1<<MaxOrder, the
// unmanageable tail is carved out and permanently marked allocated so it is
// never handed out. Calling Init again resets the allocator to this same
// initial state, discarding whatever allocations were live.
func (a *Allocator) Init() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.free.head {
		a.free.head[i] = noPage
		a.free.count[i] = 0
	}
	for i := range a.free.order {
		a.free.order[i] = notFree
	}
	for i := range a.ledger.orderOf {
		a.ledger.orderOf[i] = -1
	}
	for i := range a.bitmap.words {
		a.bitmap.words[i] = 0
	}

	a.carve(0, a.maxOrder)
}

// carve recursively splits the block [p, p+2^k) so that the portion inside
// [0, numPages) ends up on the free index and the portion at or beyond
// numPages ends up permanently marked allocated in the bitmap (but never
// placed in the free index, and never recorded in the ledger — it was never
// handed out by Acquire, so Release correctly refuses to ever take it back).
func (a *Allocator) carve(p uint32, k mem.PageOrder) {
	size := uint32(1) << k
	switch {
	case p+size <= a.numPages:
		a.free.push(k, p)
	case p >= a.numPages:
		a.bitmap.setRange(p, size)
	default:
		half := size / 2
		a.carve(p, k-1)
		a.carve(p+half, k-1)
	}
}

// Acquire reserves a contiguous run of at least n pages and returns its
// starting page index. n must be a positive integer no greater than
// 1<<MaxOrder. The returned index is a multiple of 2^k where k is the
// smallest order with 2^k >= n.
func (a *Allocator) Acquire(n uint32) (uint32, error) {
	if n == 0 || n > uint32(1)<<a.maxOrder {
		return 0, ErrInvalidSize
	}
	k := orderFor(n)

	a.mu.Lock()
	defer a.mu.Unlock()

	j := k
	for j <= a.maxOrder && a.free.empty(j) {
		j++
	}
	if j > a.maxOrder {
		return 0, mem.ErrOutOfMemory
	}

	p, _ := a.free.popAny(j)

	// Split the higher-order block down to order k. The low half always
	// keeps the parent's address and the high half becomes the new
	// buddy; that trivially preserves the alignment invariant with no
	// arithmetic choice to get wrong.
	for j > k {
		j--
		a.free.push(j, p+(uint32(1)<<j))
	}

	a.ledger.insert(p, k)
	a.bitmap.set(p)

	if a.OnEvent != nil {
		a.OnEvent(Event{Kind: EventAcquire, Start: p, Order: k})
	}
	return p, nil
}

// Release returns a previously acquired block to the allocator. p must equal
// a value previously returned by Acquire and not yet passed to Release;
// otherwise ErrInvalidRelease is returned and the allocator's state is left
// unchanged.
func (a *Allocator) Release(p uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	k, ok := a.ledger.take(p)
	if !ok {
		return ErrInvalidRelease
	}

	a.bitmap.clear(p)

	curP, curK := p, k
	for curK < a.maxOrder {
		buddy := curP ^ (uint32(1) << curK)
		if !a.free.remove(curK, buddy) {
			break
		}
		if buddy < curP {
			curP = buddy
		}
		curK++
		if a.OnEvent != nil {
			a.OnEvent(Event{Kind: EventCoalesce, Start: curP, Order: curK})
		}
	}
	a.free.push(curK, curP)

	if a.OnEvent != nil {
		a.OnEvent(Event{Kind: EventRelease, Start: p, Order: k})
	}
	return nil
}

// IsAllocated reports whether page p is currently part of an allocated
// block. It is a read-only query, taking the same lock as Acquire/Release.
func (a *Allocator) IsAllocated(p uint32) (bool, error) {
	if p >= uint32(1)<<a.maxOrder {
		return false, kernelErrors.ErrInvalidParamValue
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bitmap.test(p) {
		return true, nil
	}
	// The bitmap marks only the first page of an allocated block, so look
	// for an outstanding allocation starting at each enclosing aligned index.
	for k := mem.PageOrder(1); k <= a.maxOrder; k++ {
		start := p &^ (uint32(1)<<k - 1)
		if int16(k) <= a.ledger.orderOf[start] {
			return true, nil
		}
	}
	return false, nil
}

// Stats reports free-block counts per order plus overall free/reserved page
// totals. The real-world analogue is Linux's /proc/buddyinfo.
type Stats struct {
	FreeBlocksByOrder []uint32
	FreePages         uint64
	ReservedPages     uint32
}

// Stats computes a snapshot under the allocator's lock.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{
		FreeBlocksByOrder: make([]uint32, a.maxOrder+1),
		ReservedPages:     (uint32(1) << a.maxOrder) - a.numPages,
	}
	for k := mem.PageOrder(0); k <= a.maxOrder; k++ {
		c := a.free.count[k]
		s.FreeBlocksByOrder[k] = c
		s.FreePages += uint64(c) << k
	}
	return s
}
