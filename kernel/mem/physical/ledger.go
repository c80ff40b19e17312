package physical

import "github.com/lzuos/buddy/kernel/mem"

// ledger maps an allocated block's starting page index to the order it was
// granted at. Rather than a per-order stack of occupied pages (an
// O(N*MaxOrder) scan to find a page on release), this is a flat array
// indexed directly by page number: insert/take are both O(1) and the array
// is sized and allocated exactly once, at construction.
type ledger struct {
	orderOf []int16 // -1 means "not currently allocated"
}

func newLedger(numPages uint32) *ledger {
	l := &ledger{orderOf: make([]int16, numPages)}
	for i := range l.orderOf {
		l.orderOf[i] = -1
	}
	return l
}

// insert records that p was just granted at order k. p must not already be
// recorded.
func (l *ledger) insert(p uint32, k mem.PageOrder) {
	l.orderOf[p] = int16(k)
}

// take removes and returns the order p was recorded at, or false if p is not
// currently recorded (double-free, wild index, or never allocated).
func (l *ledger) take(p uint32) (mem.PageOrder, bool) {
	if p >= uint32(len(l.orderOf)) {
		return 0, false
	}
	k := l.orderOf[p]
	if k < 0 {
		return 0, false
	}
	l.orderOf[p] = -1
	return mem.PageOrder(k), true
}
