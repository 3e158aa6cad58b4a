package mtl

import (
	"context"
	"flag"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/gomlx/gomtl/handles"
	"github.com/gomlx/gomtl/runtimes"
	"github.com/janpfeifer/must"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

var flagRuntime = flag.String("runtime", runtimes.CPU, "runtime to test with, see package runtimes for the names")

func init() {
	klog.InitFlags(nil)
}

const squareSource = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> output: array<f32>;

@compute @workgroup_size(1)
fn square(@builtin(global_invocation_id) id: vec3<u32>) {
    output[id.x] = input[id.x] * input[id.x];
}
`

// newRuntimeRegistry creates a Registry over the -runtime runtime, closed at the end of the test.
func newRuntimeRegistry(t *testing.T, options ...Option) *Registry {
	rt, err := runtimes.New(*flagRuntime)
	require.NoError(t, err)
	r := NewRegistry(rt, options...)
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	return r
}

// requireKind checks that err is an *Error of the given kind.
func requireKind(t *testing.T, kind ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equalf(t, kind, KindOf(err), "expected %s, got %+v", kind, err)
}

// squarePipeline compiles the square kernel on the device.
func squarePipeline(t *testing.T, r *Registry, device Handle) Handle {
	lib, err := r.NewLibrary(device, squareSource)
	require.NoError(t, err)
	defer r.FreeLibrary(lib)
	fn, err := r.NewFunction(lib, "square")
	require.NoError(t, err)
	defer r.FreeFunction(fn)
	pipeline, err := r.NewComputePipelineState(device, fn)
	require.NoError(t, err)
	return pipeline
}

func TestSquare(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	info, err := r.DeviceInfo(device)
	require.NoError(t, err)
	fmt.Printf("Testing on device %q\n", info.Name)

	pipeline := squarePipeline(t, r, device)
	input, err := NewBufferFromSlice(r, device, []float32{3, 4, 5})
	require.NoError(t, err)
	output, err := r.NewBuffer(device, 12)
	require.NoError(t, err)
	queue, err := r.NewCommandQueue(device)
	require.NoError(t, err)

	cb, err := r.NewCommandBuffer(queue)
	require.NoError(t, err)
	enc, err := r.NewCommandEncoder(cb)
	require.NoError(t, err)
	require.NoError(t, r.SetComputePipelineState(enc, pipeline))
	require.NoError(t, r.SetBuffer(enc, input, 0))
	require.NoError(t, r.SetBuffer(enc, output, 1))
	require.NoError(t, r.SetThreadsAndShape(enc, pipeline, 3, 1, 1))
	require.NoError(t, r.EndEncoding(enc))
	r.FreeCommandEncoder(enc)

	status, err := r.CommandBufferStatus(cb)
	require.NoError(t, err)
	require.Equal(t, StatusNotEnqueued, status)
	require.NoError(t, r.CommitCommandBuffer(cb))
	require.NoError(t, r.WaitForCompletion(context.Background(), cb))
	status, err = r.CommandBufferStatus(cb)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status)

	// Waiting again returns the same result.
	require.NoError(t, r.WaitForCompletion(context.Background(), cb))

	got, err := BufferToSlice[float32](r, output)
	require.NoError(t, err)
	require.Equal(t, []float32{9, 16, 25}, got)

	r.FreeCommandBuffer(cb)
	r.FreeCommandQueue(queue)
	r.FreeBuffer(input)
	r.FreeBuffer(output)
	r.FreeComputePipelineState(pipeline)
	r.FreeDevice(device)
	for _, kind := range handles.KindValues() {
		require.Zerof(t, r.LiveHandles(kind), "live %s handles", kind)
	}
}

func TestDevices(t *testing.T) {
	r := newRuntimeRegistry(t)
	n, err := r.NumberOfDevices()
	require.NoError(t, err)
	require.Positive(t, n)

	_, err = r.DeviceAtIndex(n)
	requireKind(t, InvalidIndex, err)
	_, err = r.DeviceAtIndex(-1)
	requireKind(t, InvalidIndex, err)

	// Each enumeration mints a new handle to the same device.
	d0, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	d1, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	require.NotEqual(t, d0, d1)
	same, err := r.SameDevice(d0, d1)
	require.NoError(t, err)
	require.True(t, same)
	index, err := r.DeviceIndex(d1)
	require.NoError(t, err)
	require.Zero(t, index)

	alias, err := r.CopyDevice(d0)
	require.NoError(t, err)
	r.FreeDevice(d0)
	_, err = r.DeviceInfo(d0)
	requireKind(t, InvalidHandle, err)
	info, err := r.DeviceInfo(alias)
	require.NoError(t, err)
	require.NotEmpty(t, info.Name)
	r.FreeDevice(alias)
	r.FreeDevice(d1)

	// Freeing twice, or the zero handle, is a no-op.
	r.FreeDevice(d1)
	r.FreeDevice(InvalidHandleValue)
	_, err = r.DeviceInfo(InvalidHandleValue)
	requireKind(t, InvalidHandle, err)
}

func TestProvenance(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	defer r.FreeDevice(device)

	lib, err := r.NewLibrary(device, squareSource)
	require.NoError(t, err)
	defer r.FreeLibrary(lib)
	fn, err := r.NewFunction(lib, "square")
	require.NoError(t, err)
	defer r.FreeFunction(fn)
	name, err := r.FunctionName(fn)
	require.NoError(t, err)
	require.Equal(t, "square", name)
	names, err := r.LibraryFunctionNames(lib)
	require.NoError(t, err)
	require.Equal(t, []string{"square"}, names)

	pipeline, err := r.NewComputePipelineState(device, fn)
	require.NoError(t, err)
	defer r.FreeComputePipelineState(pipeline)
	buf, err := r.NewBuffer(device, 16)
	require.NoError(t, err)
	defer r.FreeBuffer(buf)
	queue, err := r.NewCommandQueue(device)
	require.NoError(t, err)
	defer r.FreeCommandQueue(queue)
	cb, err := r.NewCommandBuffer(queue)
	require.NoError(t, err)
	defer r.FreeCommandBuffer(cb)
	enc, err := r.NewCommandEncoder(cb)
	require.NoError(t, err)
	defer r.FreeCommandEncoder(enc)

	owners := map[string]func(Handle) (Handle, error){
		"LibraryDevice":              r.LibraryDevice,
		"FunctionDevice":             r.FunctionDevice,
		"ComputePipelineStateDevice": r.ComputePipelineStateDevice,
		"BufferDevice":               r.BufferDevice,
		"CommandQueueDevice":         r.CommandQueueDevice,
		"CommandBufferDevice":        r.CommandBufferDevice,
		"CommandEncoderDevice":       r.CommandEncoderDevice,
	}
	objects := map[string]Handle{
		"LibraryDevice": lib, "FunctionDevice": fn, "ComputePipelineStateDevice": pipeline, "BufferDevice": buf,
		"CommandQueueDevice": queue, "CommandBufferDevice": cb, "CommandEncoderDevice": enc,
	}
	for op, query := range owners {
		owner, err := query(objects[op])
		require.NoError(t, err, op)
		require.NotEqual(t, device, owner, op)
		same, err := r.SameDevice(device, owner)
		require.NoError(t, err, op)
		require.True(t, same, op)
		// Freeing the returned handle leaves the caller's handle valid.
		r.FreeDevice(owner)
		_, err = r.DeviceInfo(device)
		require.NoError(t, err, op)
	}

	// Aliases of pipelines and command buffers.
	pipelineAlias, err := r.CopyComputePipelineState(pipeline)
	require.NoError(t, err)
	same, err := r.SameComputePipelineState(pipeline, pipelineAlias)
	require.NoError(t, err)
	require.True(t, same)
	r.FreeComputePipelineState(pipelineAlias)
	width, err := r.ThreadExecutionWidth(pipeline)
	require.NoError(t, err)
	require.Equal(t, uint32(1), width)
	total, err := r.MaxTotalThreadsPerThreadgroup(pipeline)
	require.NoError(t, err)
	require.Equal(t, uint32(1), total)

	cbAlias, err := r.CopyCommandBuffer(cb)
	require.NoError(t, err)
	same, err = r.SameCommandBuffer(cb, cbAlias)
	require.NoError(t, err)
	require.True(t, same)
	r.FreeCommandBuffer(cbAlias)
	_, err = r.CommandBufferStatus(cb)
	require.NoError(t, err)
}

func TestErrorKinds(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	defer r.FreeDevice(device)

	_, err = r.NewLibrary(device, "fn broken( {")
	requireKind(t, CompileError, err)
	fmt.Printf("\tExpected error: %v\n", err)

	lib, err := r.NewLibrary(device, squareSource)
	require.NoError(t, err)
	defer r.FreeLibrary(lib)
	_, err = r.NewFunction(lib, "nonexist")
	requireKind(t, SymbolNotFound, err)

	// Wrong kind of handle.
	_, err = r.NewComputePipelineState(device, lib)
	requireKind(t, PipelineBuildError, err)
	_, err = r.NewFunction(device, "square")
	requireKind(t, InvalidHandle, err)

	buf, err := r.NewBuffer(device, 12)
	require.NoError(t, err)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	require.NoError(t, r.CopyToBuffer(buf, payload))

	// Copies larger than the buffer fail and leave its contents unchanged.
	oversized := make([]byte, 13)
	for ii := range oversized {
		oversized[ii] = 0xFF
	}
	requireKind(t, OutOfBounds, r.CopyToBuffer(buf, oversized))
	requireKind(t, OutOfBounds, r.CopyFromBuffer(buf, oversized))
	require.Equal(t, byte(0xFF), oversized[0])
	got := make([]byte, 12)
	require.NoError(t, r.CopyFromBuffer(buf, got))
	require.Equal(t, payload, got)

	// Nothing is copied for an empty source.
	require.NoError(t, r.CopyToBuffer(buf, nil))
	require.NoError(t, r.CopyFromBuffer(buf, got))
	require.Equal(t, payload, got)
	require.Equal(t, uint64(12), r.BufferSize(buf))
	r.FreeBuffer(buf)
	require.Zero(t, r.BufferSize(buf))
	requireKind(t, InvalidHandle, r.CopyToBuffer(buf, make([]byte, 4)))

	_, err = r.NewBuffer(device, 0)
	requireKind(t, SubmissionError, err)

	require.Equal(t, UnknownError, KindOf(nil))
	require.Equal(t, UnknownError, KindOf(fmt.Errorf("other")))
}

func TestOrdering(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	defer r.FreeDevice(device)
	pipeline := squarePipeline(t, r, device)
	defer r.FreeComputePipelineState(pipeline)
	buf, err := r.NewBuffer(device, 12)
	require.NoError(t, err)
	defer r.FreeBuffer(buf)
	out, err := r.NewBuffer(device, 12)
	require.NoError(t, err)
	defer r.FreeBuffer(out)
	queue, err := r.NewCommandQueue(device)
	require.NoError(t, err)
	defer r.FreeCommandQueue(queue)

	cb, err := r.NewCommandBuffer(queue)
	require.NoError(t, err)
	defer r.FreeCommandBuffer(cb)
	requireKind(t, InvalidState, r.WaitForCompletion(context.Background(), cb))

	enc, err := r.NewCommandEncoder(cb)
	require.NoError(t, err)
	defer r.FreeCommandEncoder(enc)
	_, err = r.NewCommandEncoder(cb)
	requireKind(t, InvalidState, err)
	requireKind(t, InvalidState, r.SetThreadsAndShape(enc, pipeline, 3, 1, 1))
	requireKind(t, InvalidState, r.CommitCommandBuffer(cb))

	require.NoError(t, r.SetComputePipelineState(enc, pipeline))
	require.NoError(t, r.SetBuffer(enc, buf, 0))
	require.NoError(t, r.SetBuffer(enc, out, 1))
	require.NoError(t, r.SetThreadsAndShape(enc, pipeline, 3, 0, 0))
	require.NoError(t, r.EndEncoding(enc))
	requireKind(t, InvalidState, r.SetBuffer(enc, buf, 0))
	requireKind(t, InvalidState, r.EndEncoding(enc))

	require.NoError(t, r.CommitCommandBuffer(cb))
	requireKind(t, InvalidState, r.CommitCommandBuffer(cb))
	_, err = r.NewCommandEncoder(cb)
	requireKind(t, InvalidState, err)
	require.NoError(t, r.WaitForCompletion(context.Background(), cb))
}

func TestMissingArgument(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	defer r.FreeDevice(device)
	pipeline := squarePipeline(t, r, device)
	defer r.FreeComputePipelineState(pipeline)
	buf, err := r.NewBuffer(device, 12)
	require.NoError(t, err)
	defer r.FreeBuffer(buf)
	queue, err := r.NewCommandQueue(device)
	require.NoError(t, err)
	defer r.FreeCommandQueue(queue)

	cb, err := r.NewCommandBuffer(queue)
	require.NoError(t, err)
	defer r.FreeCommandBuffer(cb)
	enc, err := r.NewCommandEncoder(cb)
	require.NoError(t, err)
	defer r.FreeCommandEncoder(enc)
	require.NoError(t, r.SetComputePipelineState(enc, pipeline))
	require.NoError(t, r.SetBuffer(enc, buf, 0))
	require.NoError(t, r.SetThreadsAndShape(enc, pipeline, 3, 1, 1))
	require.NoError(t, r.EndEncoding(enc))
	requireKind(t, SubmissionError, r.CommitCommandBuffer(cb))
	status, err := r.CommandBufferStatus(cb)
	require.NoError(t, err)
	require.Equal(t, StatusError, status)
	requireKind(t, SubmissionError, r.WaitForCompletion(context.Background(), cb))
}

func TestAllocationAccounting(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	defer r.FreeDevice(device)
	baseline, err := r.DeviceAllocatedMemory(device)
	require.NoError(t, err)
	for range 10 {
		buf, err := r.NewBuffer(device, 1024)
		require.NoError(t, err)
		allocated, err := r.DeviceAllocatedMemory(device)
		require.NoError(t, err)
		require.Equal(t, baseline+1024, allocated)
		r.FreeBuffer(buf)
	}
	allocated, err := r.DeviceAllocatedMemory(device)
	require.NoError(t, err)
	require.Equal(t, baseline, allocated)
}

func TestFloat16Transfer(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	defer r.FreeDevice(device)
	values := []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(-2.5), float16.Fromfloat32(0.125)}
	buf, err := NewBufferFromSlice(r, device, values)
	require.NoError(t, err)
	defer r.FreeBuffer(buf)
	require.Equal(t, uint64(6), r.BufferSize(buf))
	got, err := BufferToSlice[float16.Float16](r, buf)
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestMetrics(t *testing.T) {
	r := newRuntimeRegistry(t)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	defer r.FreeDevice(device)
	buf, err := r.NewBuffer(device, 8)
	require.NoError(t, err)
	defer r.FreeBuffer(buf)
	_, err = r.DeviceAtIndex(100)
	requireKind(t, InvalidIndex, err)

	expected := `
# HELP gomtl_live_handles Number of live handles, per object kind.
# TYPE gomtl_live_handles gauge
gomtl_live_handles{kind="Buffer"} 1
gomtl_live_handles{kind="CommandBuffer"} 0
gomtl_live_handles{kind="CommandEncoder"} 0
gomtl_live_handles{kind="CommandQueue"} 0
gomtl_live_handles{kind="Device"} 1
gomtl_live_handles{kind="Function"} 0
gomtl_live_handles{kind="Library"} 0
gomtl_live_handles{kind="PipelineState"} 0
`
	collector := r.Collector()
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), "gomtl_live_handles"))
	problems, err := testutil.CollectAndLint(collector)
	require.NoError(t, err)
	require.Empty(t, problems)
	errorsText := `
# HELP gomtl_errors_total Number of failed operations, per error kind.
# TYPE gomtl_errors_total counter
gomtl_errors_total{kind="CompileError"} 0
gomtl_errors_total{kind="InvalidHandle"} 0
gomtl_errors_total{kind="InvalidIndex"} 1
gomtl_errors_total{kind="InvalidState"} 0
gomtl_errors_total{kind="OutOfBounds"} 0
gomtl_errors_total{kind="PipelineBuildError"} 0
gomtl_errors_total{kind="SubmissionError"} 0
gomtl_errors_total{kind="SymbolNotFound"} 0
gomtl_errors_total{kind="UnknownError"} 0
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(errorsText), "gomtl_errors_total"))
}

func TestWaitCancellation(t *testing.T) {
	rt := newFakeRuntime(1)
	r := NewRegistry(rt, WithWaitTimeout(time.Minute))
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	queue, err := r.NewCommandQueue(device)
	require.NoError(t, err)
	cb, err := r.NewCommandBuffer(queue)
	require.NoError(t, err)
	require.NoError(t, r.CommitCommandBuffer(cb))
	status, err := r.CommandBufferStatus(cb)
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, status)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	requireKind(t, SubmissionError, r.WaitForCompletion(ctx, cb))
	status, err = r.CommandBufferStatus(cb)
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, status)

	rt.complete()
	require.NoError(t, r.WaitForCompletion(context.Background(), cb))
	require.NoError(t, r.Close())
	require.True(t, rt.closed.Load())
}

func TestDeferredRelease(t *testing.T) {
	rt := newFakeRuntime(1)
	r := NewRegistry(rt)
	device, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	lib, err := r.NewLibrary(device, "kernel scale\nkernel add")
	require.NoError(t, err)
	fn, err := r.NewFunction(lib, "add")
	require.NoError(t, err)
	pipelineHandle, err := r.NewComputePipelineState(device, fn)
	require.NoError(t, err)
	bufHandle, err := r.NewBuffer(device, 64)
	require.NoError(t, err)
	queue, err := r.NewCommandQueue(device)
	require.NoError(t, err)

	buf := must.M1(r.buffers.Get(bufHandle))
	nativeBuf := buf.native.(*fakeBuffer)
	pipeline := must.M1(r.pipelineStates.Get(pipelineHandle))
	nativePipeline := pipeline.native.(*fakePipeline)

	cb, err := r.NewCommandBuffer(queue)
	require.NoError(t, err)
	nativeCB := must.M1(r.commandBuffers.Get(cb)).native.(*fakeCommandBuffer)
	enc, err := r.NewCommandEncoder(cb)
	require.NoError(t, err)
	require.NoError(t, r.SetComputePipelineState(enc, pipelineHandle))
	require.NoError(t, r.SetBuffer(enc, bufHandle, 2))
	require.NoError(t, r.SetThreadsAndShape(enc, pipelineHandle, 64, 1, 1))
	require.NoError(t, r.EndEncoding(enc))
	r.FreeCommandEncoder(enc)
	require.Len(t, nativeCB.dispatches, 1)
	require.Len(t, nativeCB.dispatches[0].Buffers, 3)
	require.Nil(t, nativeCB.dispatches[0].Buffers[0])
	require.NoError(t, r.CommitCommandBuffer(cb))

	// Freeing everything while the work is in flight only releases the handles.
	r.FreeBuffer(bufHandle)
	r.FreeComputePipelineState(pipelineHandle)
	r.FreeCommandBuffer(cb)
	require.Zero(t, r.BufferSize(bufHandle))
	require.False(t, nativeBuf.isReleased())
	require.False(t, nativePipeline.isReleased())
	require.False(t, nativeCB.isReleased())
	require.True(t, buf.lease.isDropped())

	rt.complete()
	require.Eventually(t, func() bool {
		return nativeBuf.isReleased() && nativePipeline.isReleased() && nativeCB.isReleased()
	}, time.Second, time.Millisecond)
	require.Zero(t, rt.devices[0].allocated.Load())

	r.FreeFunction(fn)
	r.FreeLibrary(lib)
	r.FreeCommandQueue(queue)
	r.FreeDevice(device)
	require.NoError(t, r.Close())
}

func TestClose(t *testing.T) {
	rt := newFakeRuntime(2)
	r := NewRegistry(rt, WithLeakStack(true))
	require.Contains(t, string(r.leak.stack), "TestClose")
	d0, err := r.DeviceAtIndex(0)
	require.NoError(t, err)
	d1, err := r.DeviceAtIndex(1)
	require.NoError(t, err)
	same, err := r.SameDevice(d0, d1)
	require.NoError(t, err)
	require.False(t, same)

	lib, err := r.NewLibrary(d0, "syntax error")
	requireKind(t, CompileError, err)
	lib, err = r.NewLibrary(d0, "kernel main")
	require.NoError(t, err)
	fn, err := r.NewFunction(lib, "main")
	require.NoError(t, err)

	// Functions must be used on the device of their library.
	_, err = r.NewComputePipelineState(d1, fn)
	requireKind(t, PipelineBuildError, err)

	_, err = r.NewBuffer(d1, 128)
	require.NoError(t, err)

	// Close releases everything still alive, and closes the runtime.
	require.False(t, r.leak.closed.Load())
	require.NoError(t, r.Close())
	require.True(t, r.leak.closed.Load())
	require.Equal(t, int32(3), rt.released.Load()) // Library, function, buffer.
	require.True(t, rt.closed.Load())
	require.NoError(t, r.Close())
	_, err = r.DeviceAtIndex(0)
	requireKind(t, InvalidState, err)
}

func TestWrongDevice(t *testing.T) {
	r := NewRegistry(newFakeRuntime(2))
	defer func() { require.NoError(t, r.Close()) }()
	d0 := must.M1(r.DeviceAtIndex(0))
	d1 := must.M1(r.DeviceAtIndex(1))
	lib := must.M1(r.NewLibrary(d0, "kernel main"))
	fn := must.M1(r.NewFunction(lib, "main"))
	pipeline := must.M1(r.NewComputePipelineState(d0, fn))
	buf := must.M1(r.NewBuffer(d0, 16))

	queue := must.M1(r.NewCommandQueue(d1))
	cb := must.M1(r.NewCommandBuffer(queue))
	enc := must.M1(r.NewCommandEncoder(cb))

	// Objects of device 0 can't be used with a command buffer of device 1.
	err := r.SetComputePipelineState(enc, pipeline)
	requireKind(t, InvalidHandle, err)
	require.ErrorContains(t, err, "fake-A")
	requireKind(t, InvalidHandle, r.SetBuffer(enc, buf, 0))

	// The encoder is still usable.
	require.NoError(t, r.EndEncoding(enc))
}

func TestUnsafeCopies(t *testing.T) {
	r := NewRegistry(newFakeRuntime(1))
	defer func() { require.NoError(t, r.Close()) }()
	device := must.M1(r.DeviceAtIndex(0))
	buf := must.M1(r.NewBuffer(device, 8))
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, r.CopyToBufferUnsafe(buf, unsafe.Pointer(&src[0]), 8))
	dst := make([]byte, 8)
	require.NoError(t, r.CopyFromBufferUnsafe(buf, unsafe.Pointer(&dst[0]), 8))
	require.Equal(t, src, dst)

	// Lengths are checked before the memory is touched, including lengths that don't fit an int.
	requireKind(t, OutOfBounds, r.CopyToBufferUnsafe(buf, unsafe.Pointer(&src[0]), 9))
	requireKind(t, OutOfBounds, r.CopyToBufferUnsafe(buf, nil, math.MaxUint64))
	requireKind(t, OutOfBounds, r.CopyFromBufferUnsafe(buf, nil, 1<<63))
	requireKind(t, OutOfBounds, r.CopyToBufferUnsafe(buf, nil, 4))
	requireKind(t, OutOfBounds, r.CopyFromBufferUnsafe(buf, nil, 4))
	require.NoError(t, r.CopyToBufferUnsafe(buf, nil, 0))

	clear(dst)
	require.NoError(t, r.CopyFromBuffer(buf, dst))
	require.Equal(t, src, dst)

	r.FreeBuffer(buf)
	requireKind(t, InvalidHandle, r.CopyToBufferUnsafe(buf, unsafe.Pointer(&src[0]), 8))
}
