package mtl

import (
	"math"
	"unsafe"

	"github.com/gomlx/gomtl/dtypes"
	"github.com/gomlx/gomtl/native"
	"k8s.io/klog/v2"
)

type commandQueue struct {
	native native.CommandQueue
	device *device
}

func releaseCommandQueue(q *commandQueue) {
	q.native.Release()
}

// NewCommandQueue opens a command queue on the device.
func (r *Registry) NewCommandQueue(deviceHandle Handle) (Handle, error) {
	d, err := r.getDevice(deviceHandle, "NewCommandQueue")
	if err != nil {
		return InvalidHandleValue, err
	}
	nativeQueue, err := d.native.NewCommandQueue()
	if err != nil {
		return InvalidHandleValue, r.wrapf(SubmissionError, err, "failed to create command queue on device %q", d.name)
	}
	return r.commandQueues.HandleOf(&commandQueue{native: nativeQueue, device: d}), nil
}

// CommandQueueDevice returns a new handle to the device of the queue. The caller must free it.
func (r *Registry) CommandQueueDevice(h Handle) (Handle, error) {
	q, err := r.commandQueues.Get(h)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "CommandQueueDevice")
	}
	return r.deviceHandle(q.device), nil
}

// FreeCommandQueue frees the handle.
func (r *Registry) FreeCommandQueue(h Handle) {
	r.commandQueues.Free(h)
}

type buffer struct {
	native native.Buffer
	device *device
	size   uint64
	lease  *lease
}

func releaseBuffer(b *buffer) {
	if b.lease.drop() {
		klog.Warningf("buffer of %d bytes on device %q freed while used by uncompleted command buffers: "+
			"its memory is released when they complete", b.size, b.device.name)
	}
}

// NewBuffer allocates a buffer of size bytes on the device. Its contents are zeroed.
func (r *Registry) NewBuffer(deviceHandle Handle, size uint64) (Handle, error) {
	d, err := r.getDevice(deviceHandle, "NewBuffer")
	if err != nil {
		return InvalidHandleValue, err
	}
	if size == 0 {
		return InvalidHandleValue, r.errorf(SubmissionError, "NewBuffer: cannot allocate an empty buffer on device %q", d.name)
	}
	nativeBuf, err := d.native.NewBuffer(size)
	if err != nil {
		return InvalidHandleValue, r.wrapf(SubmissionError, err, "failed to allocate buffer of %d bytes on device %q",
			size, d.name)
	}
	b := &buffer{native: nativeBuf, device: d, size: size}
	b.lease = newLease(nativeBuf.Release)
	return r.buffers.HandleOf(b), nil
}

func (r *Registry) getBuffer(h Handle, op string) (*buffer, error) {
	b, err := r.buffers.Get(h)
	if err != nil {
		return nil, r.invalidHandle(err, op)
	}
	return b, nil
}

// BufferSize returns the size of the buffer in bytes, or 0 if the handle is invalid (e.g. already freed).
func (r *Registry) BufferSize(h Handle) uint64 {
	b, err := r.buffers.Get(h)
	if err != nil {
		return 0
	}
	return b.size
}

// BufferDevice returns a new handle to the device of the buffer. The caller must free it.
func (r *Registry) BufferDevice(h Handle) (Handle, error) {
	b, err := r.getBuffer(h, "BufferDevice")
	if err != nil {
		return InvalidHandleValue, err
	}
	return r.deviceHandle(b.device), nil
}

// CopyToBuffer copies src to the start of the buffer. If src is larger than the buffer it fails with
// OutOfBounds, and nothing is copied.
func (r *Registry) CopyToBuffer(h Handle, src []byte) error {
	b, err := r.getBuffer(h, "CopyToBuffer")
	if err != nil {
		return err
	}
	if uint64(len(src)) > b.size {
		return r.errorf(OutOfBounds, "CopyToBuffer: %d bytes requested, buffer has %d bytes", len(src), b.size)
	}
	if len(src) == 0 {
		return nil
	}
	if err := b.native.Write(src); err != nil {
		return r.wrapf(SubmissionError, err, "CopyToBuffer: failed to write %d bytes on device %q", len(src), b.device.name)
	}
	return nil
}

// CopyFromBuffer copies the start of the buffer into dst. If dst is larger than the buffer it fails with
// OutOfBounds, and nothing is copied.
func (r *Registry) CopyFromBuffer(h Handle, dst []byte) error {
	b, err := r.getBuffer(h, "CopyFromBuffer")
	if err != nil {
		return err
	}
	if uint64(len(dst)) > b.size {
		return r.errorf(OutOfBounds, "CopyFromBuffer: %d bytes requested, buffer has %d bytes", len(dst), b.size)
	}
	if len(dst) == 0 {
		return nil
	}
	if err := b.native.Read(dst); err != nil {
		return r.wrapf(SubmissionError, err, "CopyFromBuffer: failed to read %d bytes on device %q", len(dst), b.device.name)
	}
	return nil
}

// CopyToBufferUnsafe is CopyToBuffer for size bytes at data, memory not managed by Go (e.g. given by a C host).
// size is checked against the buffer before data is accessed. A nil data with a non-zero size fails with
// OutOfBounds.
func (r *Registry) CopyToBufferUnsafe(h Handle, data unsafe.Pointer, size uint64) error {
	b, err := r.getBuffer(h, "CopyToBuffer")
	if err != nil {
		return err
	}
	src, err := r.unsafeBytes("CopyToBuffer", b, data, size)
	if err != nil || src == nil {
		return err
	}
	return r.CopyToBuffer(h, src)
}

// CopyFromBufferUnsafe is CopyFromBuffer into size bytes at data. See CopyToBufferUnsafe.
func (r *Registry) CopyFromBufferUnsafe(h Handle, data unsafe.Pointer, size uint64) error {
	b, err := r.getBuffer(h, "CopyFromBuffer")
	if err != nil {
		return err
	}
	dst, err := r.unsafeBytes("CopyFromBuffer", b, data, size)
	if err != nil || dst == nil {
		return err
	}
	return r.CopyFromBuffer(h, dst)
}

// unsafeBytes returns a view of the memory at data, once size is known to fit in the buffer. It returns nil
// for size 0.
func (r *Registry) unsafeBytes(op string, b *buffer, data unsafe.Pointer, size uint64) ([]byte, error) {
	if size > b.size || size > math.MaxInt {
		return nil, r.errorf(OutOfBounds, "%s: %d bytes requested, buffer has %d bytes", op, size, b.size)
	}
	if size == 0 {
		return nil, nil
	}
	if data == nil {
		return nil, r.errorf(OutOfBounds, "%s: %d bytes requested from a NULL pointer", op, size)
	}
	return unsafe.Slice((*byte)(data), int(size)), nil
}

// FreeBuffer frees the handle. If the buffer is used by committed work that hasn't completed, the memory is
// only released when that work completes.
func (r *Registry) FreeBuffer(h Handle) {
	r.buffers.Free(h)
}

// CopySliceToBuffer copies the raw bytes of values to the start of the buffer.
func CopySliceToBuffer[T dtypes.Supported](r *Registry, h Handle, values []T) error {
	return r.CopyToBuffer(h, dtypes.Bytes(values))
}

// CopyBufferToSlice fills values with the raw bytes from the start of the buffer.
func CopyBufferToSlice[T dtypes.Supported](r *Registry, h Handle, values []T) error {
	return r.CopyFromBuffer(h, dtypes.Bytes(values))
}

// NewBufferFromSlice allocates a buffer sized for values and copies them in.
func NewBufferFromSlice[T dtypes.Supported](r *Registry, deviceHandle Handle, values []T) (Handle, error) {
	data := dtypes.Bytes(values)
	h, err := r.NewBuffer(deviceHandle, uint64(len(data)))
	if err != nil {
		return InvalidHandleValue, err
	}
	if err = r.CopyToBuffer(h, data); err != nil {
		r.FreeBuffer(h)
		return InvalidHandleValue, err
	}
	return h, nil
}

// BufferToSlice returns the buffer contents as a slice of T. Trailing bytes that don't fill a whole element are
// ignored.
func BufferToSlice[T dtypes.Supported](r *Registry, h Handle) ([]T, error) {
	dtype := dtypes.FromGenericsType[T]()
	size := r.BufferSize(h)
	if size == 0 {
		_, err := r.getBuffer(h, "BufferToSlice")
		return nil, err
	}
	values := make([]T, size/uint64(dtype.Size()))
	if err := CopyBufferToSlice(r, h, values); err != nil {
		return nil, err
	}
	return values, nil
}
