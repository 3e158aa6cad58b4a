// Package gomtl is the flat, handle-based API over GPU compute: every object is an opaque uint64 handle, and
// every call returns either a handle (InvalidHandle on failure), a Status, or a plain value.
//
// The message of the latest failure is kept in the API's ErrorChannel, see API.LastError. This is the API
// exported to C by cmd/libmtl.
//
// For Go programs, the package mtl offers the same operations with Go errors, and is preferable.
package gomtl

import (
	"context"
	"unsafe"

	"github.com/gomlx/gomtl/handles"
	"github.com/gomlx/gomtl/mtl"
	"github.com/pkg/errors"
)

// Status returned by the calls that don't create objects.
type Status uint32

const (
	// Error is returned on failure, see API.LastError for the message.
	Error Status = 0

	// Success is returned when the call succeeds.
	Success Status = 1
)

// InvalidHandle is returned by the calls that fail to create or look up an object. It is never a valid handle.
const InvalidHandle uint64 = uint64(handles.Invalid)

// API binds the flat calls to a registry.
type API struct {
	registry  *mtl.Registry
	initErr   error
	lastError *ErrorChannel
}

// NewAPI creates an API over registry. The API takes ownership of the registry: Close closes it.
func NewAPI(registry *mtl.Registry) *API {
	return &API{registry: registry, lastError: &ErrorChannel{}}
}

// newFailedAPI returns an API whose calls all fail with err. Used when the runtime could not be created.
func newFailedAPI(err error) *API {
	return &API{initErr: err, lastError: &ErrorChannel{}}
}

// Registry returns the underlying registry, or nil if the API failed to initialize.
func (a *API) Registry() *mtl.Registry {
	return a.registry
}

// Errors returns the channel holding the latest failure.
func (a *API) Errors() *ErrorChannel {
	return a.lastError
}

// LastError copies the latest failure message into dst, NUL terminated and truncated to fit.
func (a *API) LastError(dst []byte) {
	a.lastError.CopyTo(dst)
}

// Close releases every live object and the runtime.
func (a *API) Close() error {
	if a.registry == nil {
		return nil
	}
	return a.registry.Close()
}

// ready returns the registry, or records why there is none.
func (a *API) ready() *mtl.Registry {
	if a.registry == nil {
		if a.initErr == nil {
			a.lastError.Record(errors.New("gomtl not initialized"))
		} else {
			a.lastError.Record(errors.WithMessage(a.initErr, "gomtl not initialized"))
		}
	}
	return a.registry
}

// handleCall runs a call that returns a handle.
func (a *API) handleCall(op string, call func(r *mtl.Registry) (mtl.Handle, error)) (result uint64) {
	defer a.lastError.recoverPanic(op)
	r := a.ready()
	if r == nil {
		return InvalidHandle
	}
	h, err := call(r)
	if err != nil {
		a.lastError.Record(err)
		return InvalidHandle
	}
	return uint64(h)
}

// statusCall runs a call that returns only an error.
func (a *API) statusCall(op string, call func(r *mtl.Registry) error) (status Status) {
	defer a.lastError.recoverPanic(op)
	r := a.ready()
	if r == nil {
		return Error
	}
	if err := call(r); err != nil {
		a.lastError.Record(err)
		return Error
	}
	return Success
}

// freeCall runs a Free* call: failures are not reported.
func (a *API) freeCall(op string, free func(r *mtl.Registry)) {
	defer a.lastError.recoverPanic(op)
	if a.registry != nil {
		free(a.registry)
	}
}

// sameCall runs a Same* call: failures are reported as false.
func (a *API) sameCall(op string, same func(r *mtl.Registry) (bool, error)) (result bool) {
	defer a.lastError.recoverPanic(op)
	r := a.ready()
	if r == nil {
		return false
	}
	isSame, err := same(r)
	if err != nil {
		a.lastError.Record(err)
		return false
	}
	return isSame
}

// NumberOfDevices returns the number of devices, or 0 if they can't be enumerated.
func (a *API) NumberOfDevices() (n uint32) {
	defer a.lastError.recoverPanic("NumberOfDevices")
	r := a.ready()
	if r == nil {
		return 0
	}
	count, err := r.NumberOfDevices()
	if err != nil {
		a.lastError.Record(err)
	}
	return uint32(count)
}

// DeviceAtIndex returns a new handle to the device at index. Each call returns a new handle.
func (a *API) DeviceAtIndex(index uint32) uint64 {
	return a.handleCall("DeviceAtIndex", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.DeviceAtIndex(int(index))
	})
}

// DeviceInfo fills info with the description of the device.
func (a *API) DeviceInfo(device uint64, info *DeviceInfo) Status {
	return a.statusCall("DeviceInfo", func(r *mtl.Registry) error {
		if info == nil {
			return errors.New("DeviceInfo: nil output record")
		}
		nativeInfo, err := r.DeviceInfo(mtl.Handle(device))
		if err != nil {
			return err
		}
		*info = newDeviceInfo(nativeInfo)
		return nil
	})
}

// SameDevice reports whether both handles refer to the same device. Invalid handles report false.
func (a *API) SameDevice(device1, device2 uint64) bool {
	return a.sameCall("SameDevice", func(r *mtl.Registry) (bool, error) {
		return r.SameDevice(mtl.Handle(device1), mtl.Handle(device2))
	})
}

// DeviceAllocatedMemory returns the bytes allocated on the device, or -1 on error or if unknown.
func (a *API) DeviceAllocatedMemory(device uint64) (allocated int64) {
	allocated = -1
	defer a.lastError.recoverPanic("DeviceAllocatedMemory")
	r := a.ready()
	if r == nil {
		return
	}
	size, err := r.DeviceAllocatedMemory(mtl.Handle(device))
	if err != nil {
		a.lastError.Record(err)
		return
	}
	return size
}

// CopyDevice returns a new handle to the same device.
func (a *API) CopyDevice(device uint64) uint64 {
	return a.handleCall("CopyDevice", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.CopyDevice(mtl.Handle(device))
	})
}

// FreeDevice frees the device handle.
func (a *API) FreeDevice(device uint64) {
	a.freeCall("FreeDevice", func(r *mtl.Registry) { r.FreeDevice(mtl.Handle(device)) })
}

// NewLibrary compiles source on the device.
func (a *API) NewLibrary(device uint64, source string) uint64 {
	return a.handleCall("NewLibrary", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.NewLibrary(mtl.Handle(device), source)
	})
}

// LibraryDevice returns a new handle to the device of the library.
func (a *API) LibraryDevice(library uint64) uint64 {
	return a.handleCall("LibraryDevice", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.LibraryDevice(mtl.Handle(library))
	})
}

// FreeLibrary frees the library handle.
func (a *API) FreeLibrary(library uint64) {
	a.freeCall("FreeLibrary", func(r *mtl.Registry) { r.FreeLibrary(mtl.Handle(library)) })
}

// NewFunction looks up a function of the library by name.
func (a *API) NewFunction(library uint64, name string) uint64 {
	return a.handleCall("NewFunction", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.NewFunction(mtl.Handle(library), name)
	})
}

// FreeFunction frees the function handle.
func (a *API) FreeFunction(function uint64) {
	a.freeCall("FreeFunction", func(r *mtl.Registry) { r.FreeFunction(mtl.Handle(function)) })
}

// NewComputePipelineState builds a pipeline for the function on the device.
func (a *API) NewComputePipelineState(device, function uint64) uint64 {
	return a.handleCall("NewComputePipelineState", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.NewComputePipelineState(mtl.Handle(device), mtl.Handle(function))
	})
}

// ComputePipelineStateDevice returns a new handle to the device of the pipeline.
func (a *API) ComputePipelineStateDevice(pipeline uint64) uint64 {
	return a.handleCall("ComputePipelineStateDevice", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.ComputePipelineStateDevice(mtl.Handle(pipeline))
	})
}

// CopyComputePipelineState returns a new handle to the same pipeline.
func (a *API) CopyComputePipelineState(pipeline uint64) uint64 {
	return a.handleCall("CopyComputePipelineState", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.CopyComputePipelineState(mtl.Handle(pipeline))
	})
}

// SameComputePipelineState reports whether both handles refer to the same pipeline.
func (a *API) SameComputePipelineState(pipeline1, pipeline2 uint64) bool {
	return a.sameCall("SameComputePipelineState", func(r *mtl.Registry) (bool, error) {
		return r.SameComputePipelineState(mtl.Handle(pipeline1), mtl.Handle(pipeline2))
	})
}

// ThreadExecutionWidth returns the execution width of the pipeline, or 0 on error.
func (a *API) ThreadExecutionWidth(pipeline uint64) (width uint32) {
	defer a.lastError.recoverPanic("ThreadExecutionWidth")
	r := a.ready()
	if r == nil {
		return 0
	}
	width, err := r.ThreadExecutionWidth(mtl.Handle(pipeline))
	if err != nil {
		a.lastError.Record(err)
		return 0
	}
	return width
}

// FreeComputePipelineState frees the pipeline handle.
func (a *API) FreeComputePipelineState(pipeline uint64) {
	a.freeCall("FreeComputePipelineState", func(r *mtl.Registry) { r.FreeComputePipelineState(mtl.Handle(pipeline)) })
}

// NewCommandQueue creates a command queue on the device.
func (a *API) NewCommandQueue(device uint64) uint64 {
	return a.handleCall("NewCommandQueue", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.NewCommandQueue(mtl.Handle(device))
	})
}

// CommandQueueDevice returns a new handle to the device of the queue.
func (a *API) CommandQueueDevice(queue uint64) uint64 {
	return a.handleCall("CommandQueueDevice", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.CommandQueueDevice(mtl.Handle(queue))
	})
}

// FreeCommandQueue frees the queue handle.
func (a *API) FreeCommandQueue(queue uint64) {
	a.freeCall("FreeCommandQueue", func(r *mtl.Registry) { r.FreeCommandQueue(mtl.Handle(queue)) })
}

// NewBuffer allocates a buffer of size bytes on the device.
func (a *API) NewBuffer(device, size uint64) uint64 {
	return a.handleCall("NewBuffer", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.NewBuffer(mtl.Handle(device), size)
	})
}

// CopyDataToBuffer copies data to the start of the buffer.
func (a *API) CopyDataToBuffer(buffer uint64, data []byte) Status {
	return a.statusCall("CopyDataToBuffer", func(r *mtl.Registry) error {
		return r.CopyToBuffer(mtl.Handle(buffer), data)
	})
}

// CopyDataFromBuffer fills data from the start of the buffer.
func (a *API) CopyDataFromBuffer(buffer uint64, data []byte) Status {
	return a.statusCall("CopyDataFromBuffer", func(r *mtl.Registry) error {
		return r.CopyFromBuffer(mtl.Handle(buffer), data)
	})
}

// CopyDataToBufferUnsafe copies size bytes at data (e.g. memory of a C host) to the start of the buffer.
// Lengths larger than the buffer, and a nil data with a non-zero size, fail with OutOfBounds.
func (a *API) CopyDataToBufferUnsafe(buffer uint64, data unsafe.Pointer, size uint64) Status {
	return a.statusCall("CopyDataToBuffer", func(r *mtl.Registry) error {
		return r.CopyToBufferUnsafe(mtl.Handle(buffer), data, size)
	})
}

// CopyDataFromBufferUnsafe copies the start of the buffer into size bytes at data. See CopyDataToBufferUnsafe.
func (a *API) CopyDataFromBufferUnsafe(buffer uint64, data unsafe.Pointer, size uint64) Status {
	return a.statusCall("CopyDataFromBuffer", func(r *mtl.Registry) error {
		return r.CopyFromBufferUnsafe(mtl.Handle(buffer), data, size)
	})
}

// BufferSize returns the size of the buffer in bytes, or 0 if the handle is invalid.
func (a *API) BufferSize(buffer uint64) (size uint64) {
	defer a.lastError.recoverPanic("BufferSize")
	if a.registry == nil {
		return 0
	}
	return a.registry.BufferSize(mtl.Handle(buffer))
}

// BufferDevice returns a new handle to the device of the buffer.
func (a *API) BufferDevice(buffer uint64) uint64 {
	return a.handleCall("BufferDevice", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.BufferDevice(mtl.Handle(buffer))
	})
}

// FreeBuffer frees the buffer handle.
func (a *API) FreeBuffer(buffer uint64) {
	a.freeCall("FreeBuffer", func(r *mtl.Registry) { r.FreeBuffer(mtl.Handle(buffer)) })
}

// NewCommandBuffer creates a command buffer on the queue.
func (a *API) NewCommandBuffer(queue uint64) uint64 {
	return a.handleCall("NewCommandBuffer", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.NewCommandBuffer(mtl.Handle(queue))
	})
}

// CommandBufferDevice returns a new handle to the device of the command buffer.
func (a *API) CommandBufferDevice(commandBuffer uint64) uint64 {
	return a.handleCall("CommandBufferDevice", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.CommandBufferDevice(mtl.Handle(commandBuffer))
	})
}

// CopyCommandBuffer returns a new handle to the same command buffer.
func (a *API) CopyCommandBuffer(commandBuffer uint64) uint64 {
	return a.handleCall("CopyCommandBuffer", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.CopyCommandBuffer(mtl.Handle(commandBuffer))
	})
}

// SameCommandBuffer reports whether both handles refer to the same command buffer.
func (a *API) SameCommandBuffer(commandBuffer1, commandBuffer2 uint64) bool {
	return a.sameCall("SameCommandBuffer", func(r *mtl.Registry) (bool, error) {
		return r.SameCommandBuffer(mtl.Handle(commandBuffer1), mtl.Handle(commandBuffer2))
	})
}

// FreeCommandBuffer frees the command buffer handle.
func (a *API) FreeCommandBuffer(commandBuffer uint64) {
	a.freeCall("FreeCommandBuffer", func(r *mtl.Registry) { r.FreeCommandBuffer(mtl.Handle(commandBuffer)) })
}

// CommitCommandBuffer submits the command buffer, without waiting.
func (a *API) CommitCommandBuffer(commandBuffer uint64) Status {
	return a.statusCall("CommitCommandBuffer", func(r *mtl.Registry) error {
		return r.CommitCommandBuffer(mtl.Handle(commandBuffer))
	})
}

// WaitForCompletion blocks until the committed command buffer completes, or the configured wait timeout
// elapses.
func (a *API) WaitForCompletion(commandBuffer uint64) Status {
	return a.statusCall("WaitForCompletion", func(r *mtl.Registry) error {
		return r.WaitForCompletion(context.Background(), mtl.Handle(commandBuffer))
	})
}

// NewCommandEncoder creates a compute encoder on the command buffer.
func (a *API) NewCommandEncoder(commandBuffer uint64) uint64 {
	return a.handleCall("NewCommandEncoder", func(r *mtl.Registry) (mtl.Handle, error) {
		return r.NewCommandEncoder(mtl.Handle(commandBuffer))
	})
}

// FreeCommandEncoder frees the encoder handle.
func (a *API) FreeCommandEncoder(encoder uint64) {
	a.freeCall("FreeCommandEncoder", func(r *mtl.Registry) { r.FreeCommandEncoder(mtl.Handle(encoder)) })
}

// SetComputePipelineState binds the pipeline to the encoder.
func (a *API) SetComputePipelineState(encoder, pipeline uint64) Status {
	return a.statusCall("SetComputePipelineState", func(r *mtl.Registry) error {
		return r.SetComputePipelineState(mtl.Handle(encoder), mtl.Handle(pipeline))
	})
}

// SetBuffer binds the buffer as kernel argument index.
func (a *API) SetBuffer(encoder, buffer uint64, index uint32) Status {
	return a.statusCall("SetBuffer", func(r *mtl.Registry) error {
		return r.SetBuffer(mtl.Handle(encoder), mtl.Handle(buffer), index)
	})
}

// SetThreadsAndShape configures a dispatch of width x height x depth threads.
func (a *API) SetThreadsAndShape(encoder, pipeline uint64, width, height, depth uint32) Status {
	return a.statusCall("SetThreadsAndShape", func(r *mtl.Registry) error {
		return r.SetThreadsAndShape(mtl.Handle(encoder), mtl.Handle(pipeline), width, height, depth)
	})
}

// EndEncoding finishes the encoder.
func (a *API) EndEncoding(encoder uint64) Status {
	return a.statusCall("EndEncoding", func(r *mtl.Registry) error {
		return r.EndEncoding(mtl.Handle(encoder))
	})
}
