// Package handles implements the tables that map opaque 64-bit integer handles to native objects.
//
// There is one Table per object kind. A Handle packs the kind, a generation counter and a slot index:
//
//	bits 63..56: Kind
//	bits 55..32: generation (starting at 1)
//	bits 31..0:  slot index
//
// The generation of a slot is bumped every time a handle on it is freed, so a stale handle never resolves to a
// newer object that happens to reuse the slot. The value 0 (Invalid) is never issued.
package handles

import "fmt"

// Handle is an opaque reference to an object registered in a Table.
type Handle uint64

// Invalid is the reserved handle value that never refers to an object.
const Invalid Handle = 0

const (
	indexBits      = 32
	generationBits = 24
	kindShift      = indexBits + generationBits

	indexMask      = 1<<indexBits - 1
	generationMask = 1<<generationBits - 1

	// maxGeneration is the last generation of a slot: after it the slot is retired.
	maxGeneration = generationMask

	// maxSlots is the number of slots a table can hold.
	maxSlots = indexMask
)

func makeHandle(kind Kind, generation, index uint32) Handle {
	return Handle(uint64(kind)<<kindShift | uint64(generation&generationMask)<<indexBits | uint64(index))
}

// Kind of object the handle was issued for. It returns KindInvalid for Invalid.
func (h Handle) Kind() Kind {
	return Kind(h >> kindShift)
}

func (h Handle) generation() uint32 {
	return uint32(h>>indexBits) & generationMask
}

func (h Handle) index() uint32 {
	return uint32(h & indexMask)
}

// String implements fmt.Stringer, for logging and error messages.
func (h Handle) String() string {
	if h == Invalid {
		return "Invalid"
	}
	return fmt.Sprintf("%s#%d.%d", h.Kind(), h.index(), h.generation())
}

// InvalidHandleError is returned when a handle doesn't resolve to a live object.
type InvalidHandleError struct {
	Kind   Kind
	Handle Handle
	Reason string
}

// Error implements error.
func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid %s handle %d (%s): %s", e.Kind, uint64(e.Handle), e.Handle, e.Reason)
}
