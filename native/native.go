// Package native defines what the handle registry requires from a GPU compute runtime.
//
// A runtime (see package gpu for the one built on the gogpu HAL) provides the object graph: devices, libraries
// compiled from source, functions, pipeline states, command queues, buffers and command buffers. The registry in
// package mtl never looks inside these objects: it only stores them, compares them by identity, and releases them
// when the last handle referring to them is freed.
//
// Identity: implementations must return comparable values (usually pointers), and the same physical device must
// be returned as the same value on every enumeration.
package native

import "context"

// Releaser is implemented by every native object. Release is called exactly once, when the last handle
// referring to the object is freed (or the registry is closed).
type Releaser interface {
	Release()
}

// Runtime enumerates the devices of one GPU runtime.
type Runtime interface {
	// Name of the runtime, used in logs and metrics.
	Name() string

	// Devices returns the devices available. Repeated calls return the same Device values, in the same order.
	Devices() ([]Device, error)

	// Close releases the devices. Objects created from them must have been released before.
	Close() error
}

// DeviceInfo is the passthrough description of a device.
type DeviceInfo struct {
	Name                         string
	IsLowPower                   bool
	IsHeadless                   bool
	RecommendedMaxWorkingSetSize uint64
	RegistryID                   uint64
}

// Device is a physical or logical GPU.
type Device interface {
	Releaser

	Info() DeviceInfo

	// AllocatedSize returns the number of bytes currently allocated on the device, and false if the runtime
	// doesn't keep track of it.
	AllocatedSize() (int64, bool)

	// NewLibrary compiles the source. Errors carry the compiler diagnostic.
	NewLibrary(source string) (Library, error)

	// NewComputePipelineState builds a pipeline from a function of a library compiled on this device.
	NewComputePipelineState(fn Function) (PipelineState, error)

	NewCommandQueue() (CommandQueue, error)

	NewBuffer(size uint64) (Buffer, error)
}

// Library is a compiled shader module.
type Library interface {
	Releaser

	// Function looks up a compute entry point by name.
	Function(name string) (Function, error)

	// FunctionNames lists the compute entry points of the library.
	FunctionNames() []string
}

// Function is a named compute entry point of a Library.
type Function interface {
	Releaser
	Name() string
}

// PipelineState is a function compiled for dispatch on a device.
type PipelineState interface {
	Releaser

	// ThreadExecutionWidth is the number of threads executed together, in the first dimension.
	ThreadExecutionWidth() uint32

	// MaxTotalThreadsPerThreadgroup is the product of the threadgroup dimensions.
	MaxTotalThreadsPerThreadgroup() uint32
}

// CommandQueue submits command buffers in order.
type CommandQueue interface {
	Releaser
	NewCommandBuffer() (CommandBuffer, error)
}

// Buffer is a device memory region of fixed size.
type Buffer interface {
	Releaser

	Length() uint64

	// Write copies src to the start of the buffer. len(src) is never larger than Length().
	Write(src []byte) error

	// Read copies the start of the buffer into dst. len(dst) is never larger than Length().
	Read(dst []byte) error
}

// Size is a 3D dispatch grid, in threads.
type Size struct {
	Width, Height, Depth uint32
}

// Dispatch is one compute dispatch recorded by an encoder.
type Dispatch struct {
	Pipeline PipelineState

	// Buffers by binding index. Missing indices are nil.
	Buffers []Buffer

	Grid Size
}

// CommandBuffer holds work to be submitted.
type CommandBuffer interface {
	Releaser

	// Encode records a compute dispatch. It is called in the order encoders are ended.
	Encode(dispatch Dispatch) error

	// Commit submits the recorded work to the queue and returns without waiting.
	Commit() error

	// WaitUntilCompleted blocks until the work submitted with Commit finished, or ctx is done.
	WaitUntilCompleted(ctx context.Context) error
}
