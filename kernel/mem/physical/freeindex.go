package physical

import "github.com/lzuos/buddy/kernel/mem"

// noPage is the sentinel used by the intrusive free lists below to mean
// "no such page" (end of list, or "not currently free").
const noPage = ^uint32(0)

// notFree marks a page-index slot in freeIndex.order as not currently
// belonging to any order's free list.
const notFree = mem.PageOrder(0xFF)

// freeIndex holds, per order, the set of currently-free block starting
// indices. push/popAny are O(1), and remove-by-value is also O(1) because
// every free page carries its own prev/next/order slots rather than living
// in a list that has to be scanned to find it.
//
// A bitmap-scanning allocator finds a free page by scanning words of a
// per-order bitmap; that is O(1) amortized for push/pop but falls back to an
// O(n) scan for "is this *exact* page free", which is what release()'s
// buddy lookup needs. An intrusive doubly-linked list keyed directly by
// page index avoids that scan entirely.
//
// Every page index participates in at most one order's list at a time (it is
// either allocated, permanently reserved, or free-at-exactly-one-order), so a
// single pair of prev/next arrays sized by numPages can back every order's
// list.
type freeIndex struct {
	head  []uint32        // per order: head page index, or noPage
	prev  []uint32        // per page: previous page index in its list, or noPage
	next  []uint32        // per page: next page index in its list, or noPage
	order []mem.PageOrder // per page: order of the list it's in, or notFree
	count []uint32        // per order: length of that order's list
}

func newFreeIndex(maxOrder mem.PageOrder, numPages uint32) *freeIndex {
	fi := &freeIndex{
		head:  make([]uint32, maxOrder+1),
		prev:  make([]uint32, numPages),
		next:  make([]uint32, numPages),
		order: make([]mem.PageOrder, numPages),
		count: make([]uint32, maxOrder+1),
	}
	for i := range fi.head {
		fi.head[i] = noPage
	}
	for i := range fi.order {
		fi.order[i] = notFree
	}
	return fi
}

// push adds p as a free block of order k. p must not already be present in
// any order's list.
func (fi *freeIndex) push(k mem.PageOrder, p uint32) {
	fi.prev[p] = noPage
	fi.next[p] = fi.head[k]
	if fi.head[k] != noPage {
		fi.prev[fi.head[k]] = p
	}
	fi.head[k] = p
	fi.order[p] = k
	fi.count[k]++
}

// popAny removes and returns some block of order k (the most recently pushed
// one, so allocation favors cache-hot pages).
func (fi *freeIndex) popAny(k mem.PageOrder) (uint32, bool) {
	p := fi.head[k]
	if p == noPage {
		return 0, false
	}
	fi.unlink(k, p)
	return p, true
}

// remove removes the specific block p from order k's list, returning whether
// it was present there.
func (fi *freeIndex) remove(k mem.PageOrder, p uint32) bool {
	if fi.order[p] != k {
		return false
	}
	fi.unlink(k, p)
	return true
}

func (fi *freeIndex) unlink(k mem.PageOrder, p uint32) {
	if fi.prev[p] != noPage {
		fi.next[fi.prev[p]] = fi.next[p]
	} else {
		fi.head[k] = fi.next[p]
	}
	if fi.next[p] != noPage {
		fi.prev[fi.next[p]] = fi.prev[p]
	}
	fi.order[p] = notFree
	fi.count[k]--
}

// empty reports whether order k currently has no free blocks.
func (fi *freeIndex) empty(k mem.PageOrder) bool {
	return fi.count[k] == 0
}
