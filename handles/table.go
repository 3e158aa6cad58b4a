package handles

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultMinFreeSlots is the number of freed slots a table keeps aside before it starts reusing them.
const DefaultMinFreeSlots = 64

// Option configures a Table.
type Option func(*tableConfig)

type tableConfig struct {
	minFreeSlots int
}

// WithMinFreeSlots sets how many freed slots are kept before reuse. Freed slots are reused in FIFO order, so a
// larger value delays how soon a freed slot index is issued again (with a new generation).
func WithMinFreeSlots(n int) Option {
	return func(c *tableConfig) {
		c.minFreeSlots = max(n, 0)
	}
}

type slot[T comparable] struct {
	generation uint32
	live       bool
	obj        T
}

// Table maps handles of one Kind to objects of type T, and back.
//
// Several handles (aliases) may refer to the same object. The release function given to NewTable is called when
// the last alias of an object is freed.
//
// A Table is safe for concurrent use.
type Table[T comparable] struct {
	kind    Kind
	release func(T)
	config  tableConfig

	mu      sync.RWMutex
	slots   []slot[T]
	free    []uint32 // FIFO of reusable slots.
	aliases map[T][]Handle
}

// NewTable creates an empty table for the given kind. release may be nil.
func NewTable[T comparable](kind Kind, release func(T), options ...Option) *Table[T] {
	t := &Table[T]{
		kind:    kind,
		release: release,
		config:  tableConfig{minFreeSlots: DefaultMinFreeSlots},
		aliases: make(map[T][]Handle),
	}
	for _, opt := range options {
		opt(&t.config)
	}
	return t
}

// Kind of the handles issued by the table.
func (t *Table[T]) Kind() Kind {
	return t.kind
}

// mint issues a new handle for obj. It must be called with the write lock held.
func (t *Table[T]) mint(obj T) Handle {
	var index uint32
	if len(t.free) > t.config.minFreeSlots || (len(t.free) > 0 && len(t.slots) >= maxSlots) {
		index = t.free[0]
		t.free = t.free[1:]
	} else {
		if len(t.slots) >= maxSlots {
			panic(errors.Errorf("handles: table of %s exhausted, %d slots in use", t.kind, len(t.slots)))
		}
		index = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{generation: 1})
	}
	s := &t.slots[index]
	s.live = true
	s.obj = obj
	h := makeHandle(t.kind, s.generation, index)
	t.aliases[obj] = append(t.aliases[obj], h)
	return h
}

// resolve returns the slot of a live handle. It must be called with a lock held.
func (t *Table[T]) resolve(h Handle) (*slot[T], error) {
	var reason string
	switch {
	case h == Invalid:
		reason = "handle is zero"
	case h.Kind() != t.kind:
		reason = "handle was issued for " + h.Kind().String()
	case int(h.index()) >= len(t.slots):
		reason = "handle was never issued"
	default:
		s := &t.slots[h.index()]
		if s.live && s.generation == h.generation() {
			return s, nil
		}
		reason = "handle has been freed"
	}
	return nil, &InvalidHandleError{Kind: t.kind, Handle: h, Reason: reason}
}

// Get returns the object referred to by h.
func (t *Table[T]) Get(h Handle) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, err := t.resolve(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.obj, nil
}

// HandleOf returns a live handle of obj, minting one if obj has none. Calling it repeatedly with the same
// object returns the same handle for as long as that handle is not freed.
func (t *Table[T]) HandleOf(obj T) Handle {
	t.mu.RLock()
	if hs := t.aliases[obj]; len(hs) > 0 {
		t.mu.RUnlock()
		return hs[0]
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if hs := t.aliases[obj]; len(hs) > 0 {
		return hs[0]
	}
	return t.mint(obj)
}

// Acquire always mints a new handle for obj, adding an alias if obj is already registered.
func (t *Table[T]) Acquire(obj T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mint(obj)
}

// Copy mints a new alias of the object referred to by h.
func (t *Table[T]) Copy(h Handle) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.resolve(h)
	if err != nil {
		return Invalid, err
	}
	return t.mint(s.obj), nil
}

// Free invalidates h. If h was the last alias of its object, the release function is called with it (outside
// the table's lock) and Free returns true.
//
// Freeing an invalid handle is a no-op.
func (t *Table[T]) Free(h Handle) (released bool) {
	t.mu.Lock()
	s, err := t.resolve(h)
	if err != nil {
		t.mu.Unlock()
		return false
	}
	obj := s.obj
	var zero T
	s.obj = zero
	s.live = false
	if s.generation < maxGeneration {
		s.generation++
		t.free = append(t.free, h.index())
	} // else the slot is retired.

	hs := t.aliases[obj]
	for ii, alias := range hs {
		if alias == h {
			hs = append(hs[:ii], hs[ii+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(t.aliases, obj)
		released = true
	} else {
		t.aliases[obj] = hs
	}
	t.mu.Unlock()

	if released && t.release != nil {
		t.release(obj)
	}
	return released
}

// Same reports whether h1 and h2 refer to the same object.
func (t *Table[T]) Same(h1, h2 Handle) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s1, err := t.resolve(h1)
	if err != nil {
		return false, err
	}
	s2, err := t.resolve(h2)
	if err != nil {
		return false, err
	}
	return s1.obj == s2.obj, nil
}

// Aliases returns the number of live handles referring to obj.
func (t *Table[T]) Aliases(obj T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.aliases[obj])
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, hs := range t.aliases {
		n += len(hs)
	}
	return n
}

// Objects returns the distinct objects currently registered.
func (t *Table[T]) Objects() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	objs := make([]T, 0, len(t.aliases))
	for obj := range t.aliases {
		objs = append(objs, obj)
	}
	return objs
}

// Handles returns a snapshot of the live handles, in slot order.
func (t *Table[T]) Handles() []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var hs []Handle
	for ii := range t.slots {
		s := &t.slots[ii]
		if s.live {
			hs = append(hs, makeHandle(t.kind, s.generation, uint32(ii)))
		}
	}
	return hs
}

// Clear frees every live handle, releasing all objects. It returns the number of objects released.
func (t *Table[T]) Clear() int {
	released := 0
	for _, h := range t.Handles() {
		if t.Free(h) {
			released++
		}
	}
	return released
}
