package mtl

import (
	"github.com/gomlx/gomtl/native"
	"k8s.io/klog/v2"
)

// device is the record held by the devices table. There is one per native device, for the life of the Registry.
type device struct {
	native native.Device
	index  int
	name   string
}

func (r *Registry) releaseDevice(d *device) {
	klog.V(1).Infof("device #%d %q has no handles left", d.index, d.name)
	d.native.Release()
}

// loadDevices enumerates the runtime's devices once.
func (r *Registry) loadDevices() ([]*device, error) {
	r.devicesMu.Lock()
	defer r.devicesMu.Unlock()
	if r.devicesLoaded {
		return r.deviceList, r.devicesErr
	}
	r.devicesLoaded = true
	nativeDevices, err := r.runtime.Devices()
	if err != nil {
		r.devicesErr = r.wrapf(SubmissionError, err, "failed to enumerate devices of runtime %q", r.runtime.Name())
		return nil, r.devicesErr
	}
	for ii, nd := range nativeDevices {
		d := &device{native: nd, index: ii, name: nd.Info().Name}
		r.deviceList = append(r.deviceList, d)
		klog.V(1).Infof("runtime %q: device #%d %q", r.runtime.Name(), ii, d.name)
	}
	return r.deviceList, nil
}

// NumberOfDevices returns the number of devices of the runtime.
func (r *Registry) NumberOfDevices() (int, error) {
	devices, err := r.loadDevices()
	return len(devices), err
}

// DeviceAtIndex returns a new handle to the device at index, in [0, NumberOfDevices()).
//
// Each call returns a different handle, which must be freed with FreeDevice. Handles of the same index refer to
// the same device, see SameDevice.
func (r *Registry) DeviceAtIndex(index int) (Handle, error) {
	if r.closed.Load() {
		return InvalidHandleValue, r.errorf(InvalidState, "DeviceAtIndex(%d): registry is closed", index)
	}
	devices, err := r.loadDevices()
	if err != nil {
		return InvalidHandleValue, err
	}
	if index < 0 || index >= len(devices) {
		return InvalidHandleValue, r.errorf(InvalidIndex, "DeviceAtIndex(%d): there are %d devices in runtime %q",
			index, len(devices), r.runtime.Name())
	}
	return r.devices.Acquire(devices[index]), nil
}

func (r *Registry) getDevice(h Handle, op string) (*device, error) {
	d, err := r.devices.Get(h)
	if err != nil {
		return nil, r.invalidHandle(err, op)
	}
	return d, nil
}

// deviceHandle mints a new handle to the device owning some object: the caller owns it.
func (r *Registry) deviceHandle(d *device) Handle {
	return r.devices.Acquire(d)
}

// DeviceInfo returns the description of the device.
func (r *Registry) DeviceInfo(h Handle) (native.DeviceInfo, error) {
	d, err := r.getDevice(h, "DeviceInfo")
	if err != nil {
		return native.DeviceInfo{}, err
	}
	return d.native.Info(), nil
}

// DeviceIndex returns the enumeration index of the device.
func (r *Registry) DeviceIndex(h Handle) (int, error) {
	d, err := r.getDevice(h, "DeviceIndex")
	if err != nil {
		return -1, err
	}
	return d.index, nil
}

// SameDevice reports whether both handles refer to the same device.
func (r *Registry) SameDevice(h1, h2 Handle) (bool, error) {
	same, err := r.devices.Same(h1, h2)
	if err != nil {
		return false, r.invalidHandle(err, "SameDevice")
	}
	return same, nil
}

// CopyDevice returns a new handle (alias) to the same device.
func (r *Registry) CopyDevice(h Handle) (Handle, error) {
	alias, err := r.devices.Copy(h)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "CopyDevice")
	}
	return alias, nil
}

// FreeDevice frees the handle. Freeing an invalid handle is a no-op.
func (r *Registry) FreeDevice(h Handle) {
	r.devices.Free(h)
}

// DeviceAllocatedMemory returns the number of bytes currently allocated on the device, or -1 if the runtime
// doesn't track it.
func (r *Registry) DeviceAllocatedMemory(h Handle) (int64, error) {
	d, err := r.getDevice(h, "DeviceAllocatedMemory")
	if err != nil {
		return -1, err
	}
	size, ok := d.native.AllocatedSize()
	if !ok {
		return -1, nil
	}
	return size, nil
}
