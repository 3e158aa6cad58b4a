// Package gpu implements the native runtime contract (package native) over the gogpu HAL
// (github.com/gogpu/wgpu/hal), with Vulkan, Metal, DX12, OpenGL ES, and a software (CPU) backend.
//
// Libraries are compiled from WGSL source with naga (github.com/gogpu/naga). The kernel arguments are the
// buffers declared in @group(0): the @binding(i) of a buffer is the index used in SetBuffer.
//
// Example of a library with one kernel:
//
//	@group(0) @binding(0) var<storage, read> input: array<f32>;
//	@group(0) @binding(1) var<storage, read_write> output: array<f32>;
//
//	@compute @workgroup_size(1)
//	fn square(@builtin(global_invocation_id) id: vec3<u32>) {
//	    output[id.x] = input[id.x] * input[id.x];
//	}
//
// The grid given to a dispatch is in threads: it is divided by the kernel's workgroup size (rounding up), so
// kernels with a workgroup size larger than 1 must check their bounds.
package gpu

import (
	"strings"
	"sync"

	"github.com/gogpu/wgpu/hal"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Runtime enumerates the adapters of the configured backends. Devices are opened on first use.
type Runtime struct {
	config Config

	mu        sync.Mutex
	instances []hal.Instance
	devices   []*Device
	closed    bool
}

var _ native.Runtime = (*Runtime)(nil)

// New creates the HAL instances of the configured backends and enumerates their adapters.
//
// Backends not available in the build are skipped. It fails if a backend name is unknown, or if no backend
// could be instantiated.
func New(config Config) (*Runtime, error) {
	if len(config.Backends) == 0 {
		config.Backends = DefaultConfig().Backends
	}
	for _, name := range config.Backends {
		if _, _, err := halBackend(name); err != nil {
			return nil, err
		}
	}
	rt := &Runtime{config: config}
	for _, name := range config.Backends {
		backend, found, _ := halBackend(name)
		if !found {
			klog.V(1).Infof("gpu: backend %q not available in this build, skipping", name)
			continue
		}
		instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
		if err != nil {
			klog.Warningf("gpu: failed to create instance for backend %q, skipping: %v", name, err)
			continue
		}
		rt.instances = append(rt.instances, instance)
		for _, exposed := range instance.EnumerateAdapters(nil) {
			d := newDevice(rt, len(rt.devices), name, exposed)
			klog.V(1).Infof("gpu: backend %q adapter #%d: %q (%s)", name, d.index, exposed.Info.Name,
				exposed.Info.DeviceType)
			rt.devices = append(rt.devices, d)
		}
	}
	if len(rt.instances) == 0 {
		return nil, errors.Errorf("gpu: none of the backends %q is available", config.Backends)
	}
	return rt, nil
}

// Name implements native.Runtime.
func (rt *Runtime) Name() string {
	return "gpu:" + strings.Join(rt.config.Backends, ",")
}

// Devices implements native.Runtime. The same *Device values are returned on every call.
func (rt *Runtime) Devices() ([]native.Device, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, errors.New("gpu: runtime already closed")
	}
	devices := make([]native.Device, len(rt.devices))
	for ii, d := range rt.devices {
		devices[ii] = d
	}
	return devices, nil
}

// Close destroys the opened devices and the instances. It is a no-op if already closed.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	rt.closed = true
	for _, d := range rt.devices {
		d.destroy()
	}
	for _, instance := range rt.instances {
		instance.Destroy()
	}
	rt.devices = nil
	rt.instances = nil
	return nil
}
