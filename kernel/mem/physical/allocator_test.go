package physical

import (
	"testing"

	"github.com/lzuos/buddy/kernel/mem"
)

// newTestAllocator builds a MaxOrder=4, NumPages=16 allocator, the small
// arena the scenario tests below (S1-S6) are all written against.
func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	a, err := New(Config{MaxOrder: 4, NumPages: 16})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	a.Init()
	return a
}

// S1 — single small alloc.
func TestSingleSmallAlloc(t *testing.T) {
	a := newTestAllocator(t)

	p, err := a.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire(1): unexpected error: %v", err)
	}
	if p != 0 {
		t.Fatalf("Acquire(1): expected page 0; got %d", p)
	}

	for order, wantHead := range map[mem.PageOrder]uint32{0: 1, 1: 2, 2: 4, 3: 8} {
		if got, ok := a.free.popAny(order); !ok || got != wantHead {
			t.Errorf("order %d: expected free head %d; got %d (present=%t)", order, wantHead, got, ok)
		} else {
			a.free.push(order, got) // put it back, this test only inspects state
		}
	}

	if k, ok := a.ledger.take(0); !ok || k != 0 {
		t.Errorf("ledger[0]: expected order 0; got %d (present=%t)", k, ok)
	} else {
		a.ledger.insert(0, k) // restore
	}
}

// S2 — split and merge.
func TestSplitAndMerge(t *testing.T) {
	a := newTestAllocator(t)

	p1, err := a.Acquire(1)
	if err != nil || p1 != 0 {
		t.Fatalf("Acquire(1) #1: got (%d, %v); want (0, nil)", p1, err)
	}
	p2, err := a.Acquire(1)
	if err != nil || p2 != 1 {
		t.Fatalf("Acquire(1) #2: got (%d, %v); want (1, nil)", p2, err)
	}

	if err := a.Release(p1); err != nil {
		t.Fatalf("Release(%d): unexpected error: %v", p1, err)
	}
	// buddy of 0 at order 0 is 1, which is still allocated: no merge yet.
	if a.free.empty(0) {
		t.Fatalf("order 0 free list: expected page %d present after releasing it alone", p1)
	}
	if !a.free.remove(0, p1) {
		t.Fatalf("order 0 free list: expected page %d to be free", p1)
	}
	a.free.push(0, p1)

	if err := a.Release(p2); err != nil {
		t.Fatalf("Release(%d): unexpected error: %v", p2, err)
	}
	// buddy of 1 is 0, now free: merges should propagate all the way up
	// to order MaxOrder at index 0.
	if a.free.empty(a.maxOrder) {
		t.Fatalf("expected a single order-%d block at 0 after both releases", a.maxOrder)
	}
	if got, ok := a.free.popAny(a.maxOrder); !ok || got != 0 {
		t.Fatalf("expected merged block at index 0; got %d (present=%t)", got, ok)
	} else {
		a.free.push(a.maxOrder, got)
	}
	for k := mem.PageOrder(0); k < a.maxOrder; k++ {
		if !a.free.empty(k) {
			t.Errorf("order %d: expected no free blocks after full coalesce; found one", k)
		}
	}
}

// S3 — exhaustion.
func TestExhaustion(t *testing.T) {
	a := newTestAllocator(t)

	p, err := a.Acquire(16)
	if err != nil || p != 0 {
		t.Fatalf("Acquire(16): got (%d, %v); want (0, nil)", p, err)
	}

	if _, err := a.Acquire(1); err != mem.ErrOutOfMemory {
		t.Fatalf("Acquire(1) on exhausted arena: got err %v; want out-of-memory", err)
	}

	if err := a.Release(p); err != nil {
		t.Fatalf("Release(%d): unexpected error: %v", p, err)
	}

	p2, err := a.Acquire(1)
	if err != nil || p2 != 0 {
		t.Fatalf("Acquire(1) after release: got (%d, %v); want (0, nil)", p2, err)
	}
}

// S4 — invalid size.
func TestInvalidSize(t *testing.T) {
	a := newTestAllocator(t)

	if _, err := a.Acquire(0); err != ErrInvalidSize {
		t.Errorf("Acquire(0): got %v; want ErrInvalidSize", err)
	}
	if _, err := a.Acquire(17); err != ErrInvalidSize {
		t.Errorf("Acquire(17): got %v; want ErrInvalidSize", err)
	}
}

// S5 — invalid release.
func TestInvalidRelease(t *testing.T) {
	a := newTestAllocator(t)

	if err := a.Release(5); err != ErrInvalidRelease {
		t.Fatalf("Release(5) on untouched arena: got %v; want ErrInvalidRelease", err)
	}

	p, err := a.Acquire(16)
	if err != nil || p != 0 {
		t.Fatalf("Acquire(16) after invalid release: got (%d, %v); want (0, nil)", p, err)
	}
}

// S6 — fragmentation.
func TestFragmentation(t *testing.T) {
	a := newTestAllocator(t)

	pa, err := a.Acquire(1)
	if err != nil || pa != 0 {
		t.Fatalf("Acquire(1) a: got (%d, %v); want (0, nil)", pa, err)
	}
	pb, err := a.Acquire(1)
	if err != nil || pb != 1 {
		t.Fatalf("Acquire(1) b: got (%d, %v); want (1, nil)", pb, err)
	}
	pc, err := a.Acquire(2)
	if err != nil || pc != 2 {
		t.Fatalf("Acquire(2) c: got (%d, %v); want (2, nil)", pc, err)
	}

	if err := a.Release(pb); err != nil {
		t.Fatalf("Release(b): unexpected error: %v", err)
	}

	if got := a.free.count[0]; got != 1 {
		t.Errorf("order 0 free count: got %d; want 1", got)
	}
	if got := a.free.count[1]; got != 0 {
		t.Errorf("order 1 free count: got %d; want 0", got)
	}
	if got := a.free.count[2]; got != 1 {
		t.Errorf("order 2 free count: got %d; want 1", got)
	}
	if got := a.free.count[3]; got != 1 {
		t.Errorf("order 3 free count: got %d; want 1", got)
	}

	pd, err := a.Acquire(2)
	if err != nil || pd != 4 {
		t.Fatalf("Acquire(2) d: got (%d, %v); want (4, nil), splitting the order-2 block at 4", pd, err)
	}
}
