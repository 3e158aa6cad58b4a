// Package interp implements the native runtime contract (package native) with the SPIR-V interpreter of the
// gogpu software backend (github.com/gogpu/wgpu/hal/software/shader), running kernels on the CPU.
//
// It offers one device, and it doesn't depend on any system library: it is the runtime used by builds with cgo
// (like the C shared library in cmd/libmtl), where the gogpu HAL backends of package gpu are not available.
//
// Libraries are compiled from WGSL the same way as in package gpu (see internal/wgsl), so the same kernels run
// on both runtimes. Dispatches run one invocation at a time, in commit order per queue, and the work of all
// queues of the device is serialized.
package interp

import (
	"sync"

	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Name of the runtime, and of the backend of its device.
const Name = "interp"

// Runtime holds the interpreter device.
type Runtime struct {
	mu     sync.Mutex
	device *Device
	closed bool
}

var _ native.Runtime = (*Runtime)(nil)

// New creates the runtime with its device.
func New() *Runtime {
	rt := &Runtime{}
	rt.device = newDevice(rt)
	klog.V(1).Infof("interp: created device %q", rt.device.Info().Name)
	return rt
}

// Name implements native.Runtime.
func (rt *Runtime) Name() string { return Name }

// Devices implements native.Runtime.
func (rt *Runtime) Devices() ([]native.Device, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, errors.New("interp: runtime already closed")
	}
	return []native.Device{rt.device}, nil
}

// Close implements native.Runtime. It waits for the work being executed. It is a no-op if already closed.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	rt.closed = true
	rt.device.execMu.Lock()
	rt.device.execMu.Unlock()
	return nil
}
