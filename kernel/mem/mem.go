// Package mem defines the vocabulary shared by every memory subsystem
// package built on top of it (the physical page allocator, and eventually
// the slab/VMA layers built above that).
package mem

import kernelErrors "github.com/lzuos/buddy/kernel/errors"

// PageOrder is the exponent k in a block size of 2^k pages.
type PageOrder uint8

// ErrOutOfMemory is returned by allocators in this subsystem when no block
// of sufficient size is available.
var ErrOutOfMemory = kernelErrors.KernelError("out of memory")
