// libmtl builds the gomtl flat API as a C shared library:
//
//	CGO_ENABLED=1 go build -buildmode=c-shared -o libmtl.so ./cmd/libmtl
//
// The generated libmtl.h declares the mtl* functions below. All of them use the process-wide gomtl.Default API,
// configured by the environment variables $GOMTL_RUNTIME, $GOMTL_WAIT_TIMEOUT and $GOMTL_VERBOSITY.
//
// The gpu HAL backends are not linked in builds with cgo (see gpu.BackendsLinked), so the library runs the
// kernels with the "interp" runtime, the default under cgo.
package main

/*
#include <stdint.h>

#define INVALID_HANDLE ( (uint64_t) 0 )
#define MTL_SUCCESS 1
#define MTL_ERROR 0
#define METALLIB_MAX_STRING_LENGTH 256

typedef uint64_t DeviceHandle;
typedef uint64_t LibraryHandle;
typedef uint64_t FunctionHandle;
typedef uint64_t ComputePipelineStateHandle;
typedef uint64_t CommandQueueHandle;
typedef uint64_t BufferHandle;
typedef uint64_t CommandBufferHandle;
typedef uint64_t CommandEncoderHandle;

typedef struct mtlDeviceInfo {
	char name[METALLIB_MAX_STRING_LENGTH];
	uint8_t IsLowPower;
	uint8_t IsHeadless;
	uint64_t recommendedMaxWorkingSetSize;
	uint64_t RegistryID;
} mtlDeviceInfo;
*/
import "C"

import (
	"unsafe"

	"github.com/gomlx/gomtl"
)

func main() {}

func api() *gomtl.API { return gomtl.Default() }

//export mtlGetLastError
func mtlGetLastError(message *C.char, bufferLength C.int) {
	lastError(unsafe.Pointer(message), int(bufferLength))
}

// lastError copies the latest failure into the C string message of the given capacity, NUL terminated.
func lastError(message unsafe.Pointer, capacity int) {
	if message == nil || capacity <= 0 {
		return
	}
	api().LastError(unsafe.Slice((*byte)(message), capacity))
}

//export mtlNumberOfDevices
func mtlNumberOfDevices() C.uint {
	return C.uint(api().NumberOfDevices())
}

//export mtlGetDeviceAtIndex
func mtlGetDeviceAtIndex(index C.uint32_t) C.DeviceHandle {
	return C.DeviceHandle(api().DeviceAtIndex(uint32(index)))
}

//export mtlGetDeviceInfo
func mtlGetDeviceInfo(device C.DeviceHandle, info *C.mtlDeviceInfo) C.uint32_t {
	return C.uint32_t(deviceInfo(uint64(device), unsafe.Pointer(info)))
}

// deviceInfo fills the C struct mtlDeviceInfo pointed by dst. dst is left untouched on failure.
func deviceInfo(device uint64, dst unsafe.Pointer) gomtl.Status {
	if dst == nil {
		return api().DeviceInfo(device, nil)
	}
	var info gomtl.DeviceInfo
	status := api().DeviceInfo(device, &info)
	if status == gomtl.Success {
		record := (*C.mtlDeviceInfo)(dst)
		name := unsafe.Slice((*byte)(unsafe.Pointer(&record.name[0])), gomtl.MaxStringLength)
		copy(name, info.Name[:])
		record.IsLowPower = C.uint8_t(info.IsLowPower)
		record.IsHeadless = C.uint8_t(info.IsHeadless)
		record.recommendedMaxWorkingSetSize = C.uint64_t(info.RecommendedMaxWorkingSetSize)
		record.RegistryID = C.uint64_t(info.RegistryID)
	}
	return status
}

// deviceInfoLayout returns the size of the C struct mtlDeviceInfo followed by the offsets of its fields.
func deviceInfoLayout() []uintptr {
	var record C.mtlDeviceInfo
	return []uintptr{
		unsafe.Sizeof(record),
		unsafe.Offsetof(record.name),
		unsafe.Offsetof(record.IsLowPower),
		unsafe.Offsetof(record.IsHeadless),
		unsafe.Offsetof(record.recommendedMaxWorkingSetSize),
		unsafe.Offsetof(record.RegistryID),
	}
}

// goString converts a NUL terminated C string. NULL converts to "", which no call accepts.
func goString(s unsafe.Pointer) string {
	if s == nil {
		return ""
	}
	return C.GoString((*C.char)(s))
}

//export mtlSameDevice
func mtlSameDevice(device1, device2 C.DeviceHandle) C.uint8_t {
	return boolToC(api().SameDevice(uint64(device1), uint64(device2)))
}

//export mtlGetDeviceAllocatedMemory
func mtlGetDeviceAllocatedMemory(device C.DeviceHandle) C.int64_t {
	return C.int64_t(api().DeviceAllocatedMemory(uint64(device)))
}

//export mtlCopyDevice
func mtlCopyDevice(device C.DeviceHandle) C.DeviceHandle {
	return C.DeviceHandle(api().CopyDevice(uint64(device)))
}

//export mtlFreeDevice
func mtlFreeDevice(device C.DeviceHandle) {
	api().FreeDevice(uint64(device))
}

//export mtlNewLibrary
func mtlNewLibrary(device C.DeviceHandle, source *C.char) C.LibraryHandle {
	return C.LibraryHandle(api().NewLibrary(uint64(device), goString(unsafe.Pointer(source))))
}

//export mtlLibraryDevice
func mtlLibraryDevice(library C.LibraryHandle) C.DeviceHandle {
	return C.DeviceHandle(api().LibraryDevice(uint64(library)))
}

//export mtlFreeLibrary
func mtlFreeLibrary(library C.LibraryHandle) {
	api().FreeLibrary(uint64(library))
}

//export mtlNewFunction
func mtlNewFunction(library C.LibraryHandle, functionName *C.char) C.FunctionHandle {
	return C.FunctionHandle(newFunction(uint64(library), unsafe.Pointer(functionName)))
}

func newFunction(library uint64, functionName unsafe.Pointer) uint64 {
	return api().NewFunction(library, goString(functionName))
}

//export mtlFreeFunction
func mtlFreeFunction(function C.FunctionHandle) {
	api().FreeFunction(uint64(function))
}

//export mtlNewComputePipelineState
func mtlNewComputePipelineState(device C.DeviceHandle, function C.FunctionHandle) C.ComputePipelineStateHandle {
	return C.ComputePipelineStateHandle(api().NewComputePipelineState(uint64(device), uint64(function)))
}

//export mtlComputePipelineStateDevice
func mtlComputePipelineStateDevice(pipeline C.ComputePipelineStateHandle) C.DeviceHandle {
	return C.DeviceHandle(api().ComputePipelineStateDevice(uint64(pipeline)))
}

//export mtlCopyComputePipelineState
func mtlCopyComputePipelineState(pipeline C.ComputePipelineStateHandle) C.ComputePipelineStateHandle {
	return C.ComputePipelineStateHandle(api().CopyComputePipelineState(uint64(pipeline)))
}

//export mtlSameComputePipelineState
func mtlSameComputePipelineState(pipeline1, pipeline2 C.ComputePipelineStateHandle) C.uint8_t {
	return boolToC(api().SameComputePipelineState(uint64(pipeline1), uint64(pipeline2)))
}

//export mtlThreadExecutionWidth
func mtlThreadExecutionWidth(pipeline C.ComputePipelineStateHandle) C.uint32_t {
	return C.uint32_t(api().ThreadExecutionWidth(uint64(pipeline)))
}

//export mtlFreeComputePipelineState
func mtlFreeComputePipelineState(pipeline C.ComputePipelineStateHandle) {
	api().FreeComputePipelineState(uint64(pipeline))
}

//export mtlNewCommandQueue
func mtlNewCommandQueue(device C.DeviceHandle) C.CommandQueueHandle {
	return C.CommandQueueHandle(api().NewCommandQueue(uint64(device)))
}

//export mtlCommandQueueDevice
func mtlCommandQueueDevice(queue C.CommandQueueHandle) C.DeviceHandle {
	return C.DeviceHandle(api().CommandQueueDevice(uint64(queue)))
}

//export mtlFreeCommandQueue
func mtlFreeCommandQueue(queue C.CommandQueueHandle) {
	api().FreeCommandQueue(uint64(queue))
}

//export mtlNewBuffer
func mtlNewBuffer(device C.DeviceHandle, bytes C.uint64_t) C.BufferHandle {
	return C.BufferHandle(api().NewBuffer(uint64(device), uint64(bytes)))
}

//export mtlCopyDataToBuffer
func mtlCopyDataToBuffer(buffer C.BufferHandle, data unsafe.Pointer, bytes C.uint64_t) C.uint32_t {
	return C.uint32_t(api().CopyDataToBufferUnsafe(uint64(buffer), data, uint64(bytes)))
}

//export mtlCopyDataFromBuffer
func mtlCopyDataFromBuffer(buffer C.BufferHandle, data unsafe.Pointer, bytes C.uint64_t) C.uint32_t {
	return C.uint32_t(api().CopyDataFromBufferUnsafe(uint64(buffer), data, uint64(bytes)))
}

//export mtlBufferSize
func mtlBufferSize(buffer C.BufferHandle) C.uint64_t {
	return C.uint64_t(api().BufferSize(uint64(buffer)))
}

//export mtlBufferDevice
func mtlBufferDevice(buffer C.BufferHandle) C.DeviceHandle {
	return C.DeviceHandle(api().BufferDevice(uint64(buffer)))
}

//export mtlFreeBuffer
func mtlFreeBuffer(buffer C.BufferHandle) {
	api().FreeBuffer(uint64(buffer))
}

//export mtlNewCommandBuffer
func mtlNewCommandBuffer(queue C.CommandQueueHandle) C.CommandBufferHandle {
	return C.CommandBufferHandle(api().NewCommandBuffer(uint64(queue)))
}

//export mtlCommandBufferDevice
func mtlCommandBufferDevice(commandBuffer C.CommandBufferHandle) C.DeviceHandle {
	return C.DeviceHandle(api().CommandBufferDevice(uint64(commandBuffer)))
}

//export mtlCopyCommandBuffer
func mtlCopyCommandBuffer(commandBuffer C.CommandBufferHandle) C.CommandBufferHandle {
	return C.CommandBufferHandle(api().CopyCommandBuffer(uint64(commandBuffer)))
}

//export mtlSameCommandBuffer
func mtlSameCommandBuffer(commandBuffer1, commandBuffer2 C.CommandBufferHandle) C.uint8_t {
	return boolToC(api().SameCommandBuffer(uint64(commandBuffer1), uint64(commandBuffer2)))
}

//export mtlFreeCommandBuffer
func mtlFreeCommandBuffer(commandBuffer C.CommandBufferHandle) {
	api().FreeCommandBuffer(uint64(commandBuffer))
}

//export mtlCommitCommandBuffer
func mtlCommitCommandBuffer(commandBuffer C.CommandBufferHandle) C.uint32_t {
	return C.uint32_t(api().CommitCommandBuffer(uint64(commandBuffer)))
}

//export mtlWaitForCompletion
func mtlWaitForCompletion(commandBuffer C.CommandBufferHandle) C.uint32_t {
	return C.uint32_t(api().WaitForCompletion(uint64(commandBuffer)))
}

//export mtlNewCommandEncoder
func mtlNewCommandEncoder(commandBuffer C.CommandBufferHandle) C.CommandEncoderHandle {
	return C.CommandEncoderHandle(api().NewCommandEncoder(uint64(commandBuffer)))
}

//export mtlFreeCommandEncoder
func mtlFreeCommandEncoder(encoder C.CommandEncoderHandle) {
	api().FreeCommandEncoder(uint64(encoder))
}

//export mtlSetComputePipelineState
func mtlSetComputePipelineState(encoder C.CommandEncoderHandle, pipeline C.ComputePipelineStateHandle) C.uint32_t {
	return C.uint32_t(api().SetComputePipelineState(uint64(encoder), uint64(pipeline)))
}

//export mtlSetBuffer
func mtlSetBuffer(encoder C.CommandEncoderHandle, buffer C.BufferHandle, index C.uint32_t) C.uint32_t {
	return C.uint32_t(api().SetBuffer(uint64(encoder), uint64(buffer), uint32(index)))
}

//export mtlSetThreadsAndShape
func mtlSetThreadsAndShape(encoder C.CommandEncoderHandle, pipeline C.ComputePipelineStateHandle,
	width, height, depth C.uint32_t) C.uint32_t {
	return C.uint32_t(api().SetThreadsAndShape(uint64(encoder), uint64(pipeline),
		uint32(width), uint32(height), uint32(depth)))
}

//export mtlEndEncoding
func mtlEndEncoding(encoder C.CommandEncoderHandle) C.uint32_t {
	return C.uint32_t(api().EndEncoding(uint64(encoder)))
}

func boolToC(b bool) C.uint8_t {
	if b {
		return 1
	}
	return 0
}
