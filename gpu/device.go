package gpu

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device is one adapter of a backend. The HAL device and its queue are opened on first use, and shared by
// everything created on the device.
type Device struct {
	rt      *Runtime
	index   int
	backend string
	adapter hal.Adapter
	info    gputypes.AdapterInfo
	caps    hal.Capabilities

	openOnce sync.Once
	openErr  error
	hal      hal.Device
	queue    hal.Queue
	limits   gputypes.Limits

	// queueMu serializes submissions and writes on the queue.
	queueMu sync.Mutex

	allocated atomic.Int64
}

var _ native.Device = (*Device)(nil)

func newDevice(rt *Runtime, index int, backend string, exposed hal.ExposedAdapter) *Device {
	return &Device{
		rt:      rt,
		index:   index,
		backend: backend,
		adapter: exposed.Adapter,
		info:    exposed.Info,
		caps:    exposed.Capabilities,
	}
}

// open opens the HAL device, once. Later calls return the same error if it failed.
func (d *Device) open() error {
	d.openOnce.Do(func() {
		limits := d.rt.config.Limits
		if limits == (gputypes.Limits{}) {
			limits = gputypes.DefaultLimits()
		}
		openDevice, err := d.adapter.Open(gputypes.Features(0), limits)
		if err != nil {
			d.openErr = errors.Wrapf(err, "gpu: failed to open device %q (backend %s)", d.info.Name, d.backend)
			return
		}
		d.hal = openDevice.Device
		d.queue = openDevice.Queue
		d.limits = limits
		klog.V(1).Infof("gpu: opened device #%d %q (backend %s)", d.index, d.info.Name, d.backend)
	})
	return d.openErr
}

// destroy waits for the outstanding work and destroys the HAL device, if it was opened, and the adapter.
func (d *Device) destroy() {
	if d.hal != nil {
		if err := d.hal.WaitIdle(); err != nil {
			klog.Warningf("gpu: device %q failed waiting for idle: %v", d.info.Name, err)
		}
		d.hal.Destroy()
		d.hal = nil
	}
	d.adapter.Destroy()
}

// Backend returns the name of the backend of the device.
func (d *Device) Backend() string { return d.backend }

// Release implements native.Releaser. Devices live as long as the Runtime.
func (d *Device) Release() {}

// Info implements native.Device.
func (d *Device) Info() native.DeviceInfo {
	limits := d.caps.Limits
	if limits.MaxBufferSize == 0 {
		limits = gputypes.DefaultLimits()
	}
	return native.DeviceInfo{
		Name:                         d.info.Name,
		IsLowPower:                   d.info.DeviceType == gputypes.DeviceTypeIntegratedGPU,
		IsHeadless:                   d.info.DeviceType == gputypes.DeviceTypeCPU || d.info.DeviceType == gputypes.DeviceTypeVirtualGPU,
		RecommendedMaxWorkingSetSize: limits.MaxBufferSize,
		RegistryID:                   uint64(d.info.VendorID)<<32 | uint64(d.info.DeviceID),
	}
}

// AllocatedSize implements native.Device: it is the total size of the live buffers created through the device.
func (d *Device) AllocatedSize() (int64, bool) {
	return d.allocated.Load(), true
}

// NewCommandQueue implements native.Device. All queues of a device share its HAL queue.
func (d *Device) NewCommandQueue() (native.CommandQueue, error) {
	if err := d.open(); err != nil {
		return nil, err
	}
	return &CommandQueue{device: d}, nil
}

// submit submits an encoded command buffer and returns its submission index.
func (d *Device) submit(cmd hal.CommandBuffer) (uint64, error) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return 0, errors.Wrapf(err, "gpu: failed to submit to device %q", d.info.Name)
	}
	return index, nil
}
