package handles

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type testObject struct {
	name     string
	released atomic.Int32
}

func newTestTable(options ...Option) *Table[*testObject] {
	return NewTable(KindBuffer, func(obj *testObject) {
		obj.released.Add(1)
	}, options...)
}

func TestHandleEncoding(t *testing.T) {
	h := makeHandle(KindCommandQueue, 7, 42)
	require.NotEqual(t, Invalid, h)
	require.Equal(t, KindCommandQueue, h.Kind())
	require.Equal(t, uint32(7), h.generation())
	require.Equal(t, uint32(42), h.index())
	require.Equal(t, "CommandQueue#42.7", h.String())
	require.Equal(t, KindInvalid, Invalid.Kind())
	require.Equal(t, "Invalid", Invalid.String())

	// Generation wraps within its bits, it never bleeds into the kind.
	h = makeHandle(KindDevice, maxGeneration+1, 0)
	require.Equal(t, KindDevice, h.Kind())
}

func TestTable(t *testing.T) {
	t.Run("GetAndFree", func(t *testing.T) {
		table := newTestTable()
		obj := &testObject{name: "a"}
		h := table.Acquire(obj)
		require.NotEqual(t, Invalid, h)
		require.Equal(t, KindBuffer, h.Kind())

		got, err := table.Get(h)
		require.NoError(t, err)
		require.Same(t, obj, got)

		require.True(t, table.Free(h))
		require.Equal(t, int32(1), obj.released.Load())
		_, err = table.Get(h)
		require.Error(t, err)
		var invalidErr *InvalidHandleError
		require.True(t, errors.As(err, &invalidErr))
		require.Equal(t, "handle has been freed", invalidErr.Reason)

		// Double free is a silent no-op.
		require.False(t, table.Free(h))
		require.Equal(t, int32(1), obj.released.Load())
		require.Equal(t, 0, table.Len())
	})

	t.Run("InvalidHandles", func(t *testing.T) {
		table := newTestTable()
		h := table.Acquire(&testObject{})
		for _, bad := range []Handle{
			Invalid,
			makeHandle(KindDevice, 1, 0), // Right slot, wrong kind.
			makeHandle(KindBuffer, 1, 1000),
			makeHandle(KindBuffer, 2, 0), // Future generation.
			Handle(0xFFFF_FFFF_FFFF_FFFF),
		} {
			_, err := table.Get(bad)
			require.Errorf(t, err, "handle %s should be invalid", bad)
			require.False(t, table.Free(bad))
			_, err = table.Copy(bad)
			require.Error(t, err)
		}
		// Nothing was touched.
		require.Equal(t, 1, table.Len())
		_, err := table.Get(h)
		require.NoError(t, err)
	})

	t.Run("Aliases", func(t *testing.T) {
		table := newTestTable()
		obj := &testObject{}
		h1 := table.Acquire(obj)
		h2, err := table.Copy(h1)
		require.NoError(t, err)
		require.NotEqual(t, h1, h2)
		same, err := table.Same(h1, h2)
		require.NoError(t, err)
		require.True(t, same)
		require.Equal(t, 2, table.Aliases(obj))

		// Freeing one alias keeps the object alive.
		require.False(t, table.Free(h1))
		require.Equal(t, int32(0), obj.released.Load())
		_, err = table.Get(h1)
		require.Error(t, err)
		got, err := table.Get(h2)
		require.NoError(t, err)
		require.Same(t, obj, got)

		// Freeing the last alias releases it.
		require.True(t, table.Free(h2))
		require.Equal(t, int32(1), obj.released.Load())
		_, err = table.Same(h1, h2)
		require.Error(t, err)
	})

	t.Run("HandleOf", func(t *testing.T) {
		table := newTestTable()
		obj, other := &testObject{}, &testObject{}
		h := table.HandleOf(obj)
		require.Equal(t, h, table.HandleOf(obj))
		require.NotEqual(t, h, table.HandleOf(other))
		require.Equal(t, 2, table.Len())

		// After an Acquire, HandleOf keeps returning the first handle.
		h2 := table.Acquire(obj)
		require.NotEqual(t, h, h2)
		require.Equal(t, h, table.HandleOf(obj))

		// Once the first is freed, the remaining alias is returned.
		table.Free(h)
		require.Equal(t, h2, table.HandleOf(obj))
		table.Free(h2)
		h3 := table.HandleOf(obj)
		require.NotEqual(t, h, h3)
		require.NotEqual(t, h2, h3)
	})

	t.Run("StaleHandlesAfterReuse", func(t *testing.T) {
		table := newTestTable(WithMinFreeSlots(0))
		first := &testObject{name: "first"}
		h := table.Acquire(first)
		table.Free(h)

		// With no reserve, the slot is immediately reused, but with a new generation.
		second := &testObject{name: "second"}
		h2 := table.Acquire(second)
		require.Equal(t, h.index(), h2.index())
		require.NotEqual(t, h, h2)
		_, err := table.Get(h)
		require.Error(t, err)
		got, err := table.Get(h2)
		require.NoError(t, err)
		require.Equal(t, "second", got.name)
	})

	t.Run("FreeSlotsReserve", func(t *testing.T) {
		const reserve = 4
		table := newTestTable(WithMinFreeSlots(reserve))
		var freed []Handle
		for range reserve + 1 {
			h := table.Acquire(&testObject{})
			table.Free(h)
			freed = append(freed, h)
		}
		// Freed slot indices are not reused while the reserve isn't full.
		seen := make(map[uint32]bool)
		for _, h := range freed {
			seen[h.index()] = true
		}
		require.Len(t, seen, reserve+1)

		// Now the first freed slot is reused.
		h := table.Acquire(&testObject{})
		require.Equal(t, freed[0].index(), h.index())
		require.Equal(t, freed[0].generation()+1, h.generation())
	})

	t.Run("RetiredSlot", func(t *testing.T) {
		table := newTestTable(WithMinFreeSlots(0))
		// Fake a slot on its last generation, ready for reuse.
		table.slots = append(table.slots, slot[*testObject]{generation: maxGeneration})
		table.free = []uint32{0}
		h := table.Acquire(&testObject{})
		require.Equal(t, uint32(0), h.index())
		require.Equal(t, uint32(maxGeneration), h.generation())
		require.True(t, table.Free(h))
		require.Empty(t, table.free)
		h2 := table.Acquire(&testObject{})
		require.NotEqual(t, h.index(), h2.index())
	})

	t.Run("Clear", func(t *testing.T) {
		table := newTestTable()
		objs := []*testObject{{}, {}, {}}
		for _, obj := range objs {
			h := table.Acquire(obj)
			_, err := table.Copy(h)
			require.NoError(t, err)
		}
		require.Equal(t, 6, table.Len())
		require.Len(t, table.Objects(), 3)
		require.Equal(t, 3, table.Clear())
		for _, obj := range objs {
			require.Equal(t, int32(1), obj.released.Load())
		}
		require.Equal(t, 0, table.Len())
	})
}

func TestTableConcurrency(t *testing.T) {
	buffers := newTestTable()
	queues := NewTable[*testObject](KindCommandQueue, nil)
	const numWorkers = 16
	const numIterations = 200

	var g errgroup.Group
	for worker := range numWorkers {
		g.Go(func() error {
			for ii := range numIterations {
				obj := &testObject{name: fmt.Sprintf("%d-%d", worker, ii)}
				h := buffers.Acquire(obj)
				alias, err := buffers.Copy(h)
				if err != nil {
					return err
				}
				q := queues.HandleOf(obj)
				got, err := buffers.Get(alias)
				if err != nil {
					return err
				}
				if got != obj {
					return errors.Errorf("handle %s resolved to %q, wanted %q", alias, got.name, obj.name)
				}
				buffers.Free(h)
				if !buffers.Free(alias) {
					return errors.Errorf("last alias %s of %q didn't release it", alias, obj.name)
				}
				queues.Free(q)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 0, buffers.Len())
	require.Equal(t, 0, queues.Len())
}

// BenchmarkTable measures Acquire+Get+Free cycles with different numbers of live handles in the table.
func BenchmarkTable(b *testing.B) {
	for _, live := range []int{0, 1_000, 100_000} {
		b.Run(fmt.Sprintf("live=%d", live), func(b *testing.B) {
			table := newTestTable()
			for ii := range live {
				table.Acquire(&testObject{name: fmt.Sprint(ii)})
			}
			obj := &testObject{name: "bench"}
			for b.Loop() {
				h := table.Acquire(obj)
				if _, err := table.Get(h); err != nil {
					b.Fatal(err)
				}
				table.Free(h)
			}
		})
	}
}
