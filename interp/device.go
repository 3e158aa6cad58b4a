package interp

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// DeviceName is the name reported by the interpreter device.
const DeviceName = "gomtl SPIR-V interpreter"

// Device runs the kernels on the CPU. Its memory is the Go heap.
type Device struct {
	rt     *Runtime
	limits gputypes.Limits

	// execMu is held while dispatches execute, and while buffers are read or written.
	execMu sync.Mutex

	allocated atomic.Int64
}

var _ native.Device = (*Device)(nil)

func newDevice(rt *Runtime) *Device {
	return &Device{rt: rt, limits: gputypes.DefaultLimits()}
}

// Backend returns the name of the backend of the device.
func (d *Device) Backend() string { return Name }

// Release implements native.Releaser. The device lives as long as the Runtime.
func (d *Device) Release() {}

// Info implements native.Device.
func (d *Device) Info() native.DeviceInfo {
	return native.DeviceInfo{
		Name:                         DeviceName,
		IsHeadless:                   true,
		RecommendedMaxWorkingSetSize: d.limits.MaxBufferSize,
	}
}

// AllocatedSize implements native.Device: it is the total size of the live buffers.
func (d *Device) AllocatedSize() (int64, bool) {
	return d.allocated.Load(), true
}

// NewCommandQueue implements native.Device.
func (d *Device) NewCommandQueue() (native.CommandQueue, error) {
	return &CommandQueue{device: d}, nil
}

// NewBuffer implements native.Device. The contents are zeroed.
func (d *Device) NewBuffer(size uint64) (native.Buffer, error) {
	if size == 0 {
		return nil, errors.New("interp: cannot allocate an empty buffer")
	}
	if size > d.limits.MaxBufferSize {
		return nil, errors.Errorf("interp: buffer of %d bytes is larger than the maximum of %d bytes", size,
			d.limits.MaxBufferSize)
	}
	// Kernels access buffers in 4 bytes words.
	b := &Buffer{device: d, length: size, data: make([]byte, (size+3)&^3)}
	d.allocated.Add(int64(size))
	return b, nil
}

// Buffer is a byte slice, shared with the interpreter during dispatches.
type Buffer struct {
	device   *Device
	length   uint64
	data     []byte
	released atomic.Bool
}

var _ native.Buffer = (*Buffer)(nil)

// Length implements native.Buffer.
func (b *Buffer) Length() uint64 { return b.length }

// Write implements native.Buffer.
func (b *Buffer) Write(src []byte) error {
	if uint64(len(src)) > b.length {
		return errors.Errorf("interp: writing %d bytes to a buffer of %d bytes", len(src), b.length)
	}
	b.device.execMu.Lock()
	defer b.device.execMu.Unlock()
	if b.data == nil {
		return errors.New("interp: buffer already released")
	}
	copy(b.data, src)
	return nil
}

// Read implements native.Buffer.
func (b *Buffer) Read(dst []byte) error {
	if uint64(len(dst)) > b.length {
		return errors.Errorf("interp: reading %d bytes from a buffer of %d bytes", len(dst), b.length)
	}
	b.device.execMu.Lock()
	defer b.device.execMu.Unlock()
	if b.data == nil {
		return errors.New("interp: buffer already released")
	}
	copy(dst, b.data)
	return nil
}

// Release implements native.Releaser.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.device.execMu.Lock()
	b.data = nil
	b.device.execMu.Unlock()
	b.device.allocated.Add(-int64(b.length))
}
