package gpu

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gomlx/gomtl/internal/wgsl"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// CommandQueue creates command buffers submitted to the device queue.
type CommandQueue struct {
	device *Device
}

var _ native.CommandQueue = (*CommandQueue)(nil)

// Release implements native.Releaser.
func (q *CommandQueue) Release() {}

// NewCommandBuffer implements native.CommandQueue.
func (q *CommandQueue) NewCommandBuffer() (native.CommandBuffer, error) {
	return &CommandBuffer{device: q.device}, nil
}

// CommandBuffer accumulates dispatches, and encodes them in one compute pass on Commit.
type CommandBuffer struct {
	device *Device

	mu         sync.Mutex
	dispatches []native.Dispatch
	committed  bool
	submission uint64
	cmd        hal.CommandBuffer
	bindGroups []hal.BindGroup
	released   bool
}

var _ native.CommandBuffer = (*CommandBuffer)(nil)

// Encode implements native.CommandBuffer.
func (c *CommandBuffer) Encode(dispatch native.Dispatch) error {
	p, ok := dispatch.Pipeline.(*PipelineState)
	if !ok {
		return errors.Errorf("gpu: pipeline of type %T was not created by this runtime", dispatch.Pipeline)
	}
	if p.device != c.device {
		return errors.Errorf("gpu: pipeline %q belongs to device %q, not %q", p.kernel.Name,
			p.device.info.Name, c.device.info.Name)
	}
	for ii, buf := range dispatch.Buffers {
		if buf == nil {
			continue
		}
		b, ok := buf.(*Buffer)
		if !ok {
			return errors.Errorf("gpu: buffer %d of type %T was not created by this runtime", ii, buf)
		}
		if b.device != c.device {
			return errors.Errorf("gpu: buffer %d belongs to device %q, not %q", ii, b.device.info.Name,
				c.device.info.Name)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		return errors.New("gpu: command buffer already committed")
	}
	c.dispatches = append(c.dispatches, dispatch)
	return nil
}

// bindGroup creates the bind group of a dispatch, with every argument of the kernel bound.
func (c *CommandBuffer) bindGroup(dispatch native.Dispatch, p *PipelineState) (hal.BindGroup, error) {
	bound, err := p.kernel.Bound(dispatch.Buffers)
	if err != nil {
		return nil, errors.WithMessage(err, "gpu")
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(bound))
	for ii, binding := range p.kernel.Bindings {
		b := bound[ii].(*Buffer)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  binding.Index,
			Resource: gputypes.BufferBinding{Buffer: b.hal.NativeHandle(), Size: b.allocated},
		})
	}
	group, err := c.device.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "gomtl-" + p.kernel.Name,
		Layout:  p.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "gpu: failed to create bind group for kernel %q", p.kernel.Name)
	}
	return group, nil
}

// Commit implements native.CommandBuffer: the dispatches are encoded in a compute pass, in order, and submitted.
func (c *CommandBuffer) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		return errors.New("gpu: command buffer already committed")
	}
	c.committed = true
	if len(c.dispatches) == 0 {
		return nil
	}
	d := c.device

	type pass struct {
		pipeline *PipelineState
		group    hal.BindGroup
		x, y, z  uint32
	}
	passes := make([]pass, 0, len(c.dispatches))
	for _, dispatch := range c.dispatches {
		p := dispatch.Pipeline.(*PipelineState)
		counts, err := wgsl.Workgroups(dispatch.Grid, p.kernel.Workgroup, d.limits.MaxComputeWorkgroupsPerDimension)
		if err != nil {
			return errors.WithMessagef(err, "gpu: kernel %q", p.kernel.Name)
		}
		group, err := c.bindGroup(dispatch, p)
		if err != nil {
			return err
		}
		c.bindGroups = append(c.bindGroups, group)
		passes = append(passes, pass{pipeline: p, group: group, x: counts[0], y: counts[1], z: counts[2]})
	}

	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gomtl-commands"})
	if err != nil {
		return errors.Wrap(err, "gpu: failed to create command encoder")
	}
	if err = encoder.BeginEncoding("gomtl-commands"); err != nil {
		return errors.Wrap(err, "gpu: failed to begin encoding")
	}
	computePass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "gomtl-dispatches"})
	for _, p := range passes {
		computePass.SetPipeline(p.pipeline.compute)
		computePass.SetBindGroup(KernelGroup, p.group, nil)
		computePass.Dispatch(p.x, p.y, p.z)
	}
	computePass.End()
	c.cmd, err = encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return errors.Wrap(err, "gpu: failed to end encoding")
	}
	c.submission, err = d.submit(c.cmd)
	return err
}

// WaitUntilCompleted implements native.CommandBuffer.
func (c *CommandBuffer) WaitUntilCompleted(ctx context.Context) error {
	c.mu.Lock()
	committed, submission := c.committed, c.submission
	c.mu.Unlock()
	if !committed {
		return errors.New("gpu: command buffer not committed")
	}
	if submission == 0 {
		return nil
	}
	return c.device.waitSubmission(ctx, submission)
}

// Release implements native.Releaser.
func (c *CommandBuffer) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	dev := c.device.hal
	for _, group := range c.bindGroups {
		dev.DestroyBindGroup(group)
	}
	c.bindGroups = nil
	if c.cmd != nil {
		dev.FreeCommandBuffer(c.cmd)
		c.cmd = nil
	}
	c.dispatches = nil
}

const (
	pollInitialInterval = 50 * time.Microsecond
	pollMaxInterval     = 10 * time.Millisecond
)

// waitSubmission polls the queue until the submission completes, or ctx is done.
func (d *Device) waitSubmission(ctx context.Context, submission uint64) error {
	if d.queue.PollCompleted() >= submission {
		return nil
	}
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(pollInitialInterval),
		backoff.WithMaxInterval(pollMaxInterval),
		backoff.WithMaxElapsedTime(0))
	return backoff.Retry(func() error {
		if d.queue.PollCompleted() >= submission {
			return nil
		}
		return errPending
	}, backoff.WithContext(policy, ctx))
}

var errPending = errors.New("gpu: submission pending")
