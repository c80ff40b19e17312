package physical

import "github.com/lzuos/buddy/kernel/mem"

// EventKind identifies what happened in a diagnostic Event.
type EventKind uint8

const (
	// EventAcquire fires after a successful Acquire, once the ledger and
	// bitmap have been updated.
	EventAcquire EventKind = iota
	// EventRelease fires after a successful Release, once any coalescing
	// has completed and the merged block has been pushed back onto the
	// free index.
	EventRelease
	// EventCoalesce fires once per buddy merge performed while
	// processing a Release, before the final push.
	EventCoalesce
)

// Event is a zero-allocation notification of allocator activity. It is
// passed by value to Allocator.OnEvent, if one is set.
type Event struct {
	Kind  EventKind
	Start uint32
	Order mem.PageOrder
}

// OnEvent, when non-nil, is called synchronously (while the allocator's lock
// is still held) for every Acquire/Release/coalesce. This code may run in a
// context with no allocating logger available, so diagnostics are a plain
// injectable function value instead of a call into a logging package.
// OnEvent must not call back into the Allocator it was registered on —
// doing so would deadlock on the allocator's own mutex.
type OnEvent func(Event)
