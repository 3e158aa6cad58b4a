package mtl

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// fakeRuntime is an in-memory native.Runtime whose command buffers only complete when the test opens the gate.
// Libraries declare their functions with lines "kernel <name>", and fail to compile if the source contains
// "syntax error".
type fakeRuntime struct {
	devices  []*fakeDevice
	gate     chan struct{}
	released atomic.Int32 // Number of native objects released.
	closed   atomic.Bool
}

func newFakeRuntime(numDevices int) *fakeRuntime {
	rt := &fakeRuntime{gate: make(chan struct{})}
	for ii := range numDevices {
		rt.devices = append(rt.devices, &fakeDevice{rt: rt, name: "fake-" + string(rune('A'+ii))})
	}
	return rt
}

// complete lets all committed command buffers complete.
func (rt *fakeRuntime) complete() { close(rt.gate) }

func (rt *fakeRuntime) Name() string { return "fake" }

func (rt *fakeRuntime) Devices() ([]native.Device, error) {
	devices := make([]native.Device, len(rt.devices))
	for ii, d := range rt.devices {
		devices[ii] = d
	}
	return devices, nil
}

func (rt *fakeRuntime) Close() error {
	rt.closed.Store(true)
	return nil
}

type fakeReleaser struct {
	rt   *fakeRuntime
	done atomic.Bool
}

func (r *fakeReleaser) Release() {
	if !r.done.CompareAndSwap(false, true) {
		panic("native object released twice")
	}
	r.rt.released.Add(1)
}

func (r *fakeReleaser) isReleased() bool { return r.done.Load() }

type fakeDevice struct {
	rt        *fakeRuntime
	name      string
	allocated atomic.Int64
}

func (d *fakeDevice) Release() {}

func (d *fakeDevice) Info() native.DeviceInfo {
	return native.DeviceInfo{Name: d.name, IsHeadless: true, RecommendedMaxWorkingSetSize: 1 << 30}
}

func (d *fakeDevice) AllocatedSize() (int64, bool) { return d.allocated.Load(), true }

func (d *fakeDevice) NewLibrary(source string) (native.Library, error) {
	if strings.Contains(source, "syntax error") {
		return nil, errors.New("1:1: syntax error")
	}
	var names []string
	for _, line := range strings.Split(source, "\n") {
		if name, found := strings.CutPrefix(strings.TrimSpace(line), "kernel "); found {
			names = append(names, name)
		}
	}
	return &fakeLibrary{fakeReleaser: fakeReleaser{rt: d.rt}, names: names}, nil
}

func (d *fakeDevice) NewComputePipelineState(fn native.Function) (native.PipelineState, error) {
	return &fakePipeline{fakeReleaser: fakeReleaser{rt: d.rt}}, nil
}

func (d *fakeDevice) NewCommandQueue() (native.CommandQueue, error) {
	return &fakeQueue{fakeReleaser: fakeReleaser{rt: d.rt}, device: d}, nil
}

func (d *fakeDevice) NewBuffer(size uint64) (native.Buffer, error) {
	d.allocated.Add(int64(size))
	return &fakeBuffer{fakeReleaser: fakeReleaser{rt: d.rt}, device: d, data: make([]byte, size)}, nil
}

type fakeLibrary struct {
	fakeReleaser
	names []string
}

func (l *fakeLibrary) Function(name string) (native.Function, error) {
	for _, n := range l.names {
		if n == name {
			return &fakeFunction{fakeReleaser: fakeReleaser{rt: l.rt}, name: name}, nil
		}
	}
	return nil, errors.Errorf("no function %q", name)
}

func (l *fakeLibrary) FunctionNames() []string { return l.names }

type fakeFunction struct {
	fakeReleaser
	name string
}

func (f *fakeFunction) Name() string { return f.name }

type fakePipeline struct {
	fakeReleaser
}

func (p *fakePipeline) ThreadExecutionWidth() uint32          { return 32 }
func (p *fakePipeline) MaxTotalThreadsPerThreadgroup() uint32 { return 1024 }

type fakeQueue struct {
	fakeReleaser
	device *fakeDevice
}

func (q *fakeQueue) NewCommandBuffer() (native.CommandBuffer, error) {
	return &fakeCommandBuffer{fakeReleaser: fakeReleaser{rt: q.rt}}, nil
}

type fakeBuffer struct {
	fakeReleaser
	device *fakeDevice
	mu     sync.Mutex
	data   []byte
}

func (b *fakeBuffer) Release() {
	b.fakeReleaser.Release()
	b.device.allocated.Add(-int64(len(b.data)))
}

func (b *fakeBuffer) Length() uint64 { return uint64(len(b.data)) }

func (b *fakeBuffer) Write(src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.data, src)
	return nil
}

func (b *fakeBuffer) Read(dst []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(dst, b.data)
	return nil
}

type fakeCommandBuffer struct {
	fakeReleaser
	mu         sync.Mutex
	dispatches []native.Dispatch
}

func (c *fakeCommandBuffer) Encode(dispatch native.Dispatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches = append(c.dispatches, dispatch)
	return nil
}

func (c *fakeCommandBuffer) Commit() error { return nil }

func (c *fakeCommandBuffer) WaitUntilCompleted(ctx context.Context) error {
	select {
	case <-c.rt.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
