package physical

import (
	"math/bits"

	"github.com/lzuos/buddy/kernel/mem"
)

// orderFor returns the smallest order k such that 2^k >= n, for n >= 1.
// Subtracting 1 from n handles exact powers of two correctly; the bit length
// of n-1 (one more than the index of its highest set bit, or 0 when n is 1)
// is then exactly k, which bits.Len32 gives in one step instead of a
// shift-and-count loop.
func orderFor(n uint32) mem.PageOrder {
	return mem.PageOrder(bits.Len32(n - 1))
}
