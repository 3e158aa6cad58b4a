package gpu

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// copyAlignment is the alignment of the sizes of buffer copies and queue writes.
const copyAlignment = 4

func alignUp(size uint64) uint64 {
	return (size + copyAlignment - 1) &^ (copyAlignment - 1)
}

// Buffers can be bound to both storage and uniform kernel arguments.
const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageUniform | gputypes.BufferUsageCopySrc |
	gputypes.BufferUsageCopyDst

// Buffer is a storage buffer. Its allocation is rounded up to a multiple of 4 bytes.
type Buffer struct {
	device    *Device
	hal       hal.Buffer
	length    uint64
	allocated uint64
	released  atomic.Bool
}

var _ native.Buffer = (*Buffer)(nil)

// NewBuffer implements native.Device. The contents are zeroed.
func (d *Device) NewBuffer(size uint64) (native.Buffer, error) {
	if err := d.open(); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.New("gpu: buffer size must be positive")
	}
	allocated := alignUp(size)
	if d.limits.MaxBufferSize > 0 && allocated > d.limits.MaxBufferSize {
		return nil, errors.Errorf("gpu: buffer of %d bytes larger than the device %q limit of %d bytes",
			size, d.info.Name, d.limits.MaxBufferSize)
	}
	buf, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "gomtl-buffer",
		Size:  allocated,
		Usage: storageUsage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "gpu: failed to allocate %d bytes on device %q", size, d.info.Name)
	}
	d.allocated.Add(int64(allocated))
	return &Buffer{device: d, hal: buf, length: size, allocated: allocated}, nil
}

// Length implements native.Buffer.
func (b *Buffer) Length() uint64 { return b.length }

// Write implements native.Buffer.
func (b *Buffer) Write(src []byte) error {
	if uint64(len(src)) > b.length {
		return errors.Errorf("gpu: writing %d bytes to a buffer of %d bytes", len(src), b.length)
	}
	data := src
	if tail := len(src) % copyAlignment; tail != 0 {
		// Queue writes are word sized: merge the partial last word with the buffer contents.
		data = make([]byte, alignUp(uint64(len(src))))
		if err := b.readAligned(data[len(data)-copyAlignment:], uint64(len(data)-copyAlignment)); err != nil {
			return err
		}
		copy(data, src)
	}
	d := b.device
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	if err := d.queue.WriteBuffer(b.hal, 0, data); err != nil {
		return errors.Wrapf(err, "gpu: failed to write %d bytes to buffer on device %q", len(src), d.info.Name)
	}
	return nil
}

// Read implements native.Buffer.
func (b *Buffer) Read(dst []byte) error {
	if uint64(len(dst)) > b.length {
		return errors.Errorf("gpu: reading %d bytes from a buffer of %d bytes", len(dst), b.length)
	}
	if len(dst) == 0 {
		return nil
	}
	if len(dst)%copyAlignment == 0 {
		return b.readAligned(dst, 0)
	}
	data := make([]byte, alignUp(uint64(len(dst))))
	if err := b.readAligned(data, 0); err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// readAligned copies the buffer contents at offset into dst, through a mappable staging buffer. The offset and
// len(dst) must be multiples of 4.
func (b *Buffer) readAligned(dst []byte, offset uint64) error {
	d := b.device
	size := uint64(len(dst))
	staging, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "gomtl-staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "gpu: failed to create staging buffer of %d bytes on device %q", size, d.info.Name)
	}
	defer d.hal.DestroyBuffer(staging)

	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gomtl-read"})
	if err != nil {
		return errors.Wrap(err, "gpu: failed to create command encoder")
	}
	if err = encoder.BeginEncoding("gomtl-read"); err != nil {
		return errors.Wrap(err, "gpu: failed to begin encoding")
	}
	encoder.CopyBufferToBuffer(b.hal, staging, []hal.BufferCopy{{SrcOffset: offset, Size: size}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return errors.Wrap(err, "gpu: failed to encode buffer read")
	}
	defer d.hal.FreeCommandBuffer(cmd)
	index, err := d.submit(cmd)
	if err != nil {
		return err
	}
	if err = d.waitSubmission(context.Background(), index); err != nil {
		return err
	}

	mapping, err := d.hal.MapBuffer(staging, 0, size)
	if err != nil {
		return errors.Wrapf(err, "gpu: failed to map staging buffer on device %q", d.info.Name)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err = d.hal.UnmapBuffer(staging); err != nil {
		return errors.Wrapf(err, "gpu: failed to unmap staging buffer on device %q", d.info.Name)
	}
	return nil
}

// Release implements native.Releaser.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.device.hal.DestroyBuffer(b.hal)
	b.device.allocated.Add(-int64(b.allocated))
}
