package interp

import (
	"context"
	"sync"

	"github.com/gogpu/wgpu/hal/software/shader"
	"github.com/gomlx/gomtl/internal/wgsl"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CommandQueue executes its command buffers in commit order.
type CommandQueue struct {
	device *Device

	mu   sync.Mutex
	tail chan struct{}
}

var _ native.CommandQueue = (*CommandQueue)(nil)

// Release implements native.Releaser.
func (q *CommandQueue) Release() {}

// NewCommandBuffer implements native.CommandQueue.
func (q *CommandQueue) NewCommandBuffer() (native.CommandBuffer, error) {
	return &CommandBuffer{queue: q}, nil
}

// enqueue makes done the last command buffer of the queue, and returns the previous one (nil if none).
func (q *CommandQueue) enqueue(done chan struct{}) (previous chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	previous, q.tail = q.tail, done
	return previous
}

// CommandBuffer records dispatches, and executes them in a goroutine once committed.
type CommandBuffer struct {
	queue *CommandQueue

	mu         sync.Mutex
	dispatches []native.Dispatch
	committed  bool
	done       chan struct{}

	// err is set before done is closed.
	err error
}

var _ native.CommandBuffer = (*CommandBuffer)(nil)

// Encode implements native.CommandBuffer.
func (c *CommandBuffer) Encode(dispatch native.Dispatch) error {
	d := c.queue.device
	p, ok := dispatch.Pipeline.(*PipelineState)
	if !ok {
		return errors.Errorf("interp: pipeline of type %T was not created by this runtime", dispatch.Pipeline)
	}
	if p.library.device != d {
		return errors.Errorf("interp: pipeline %q belongs to another device", p.kernel.Name)
	}
	for ii, buf := range dispatch.Buffers {
		if buf == nil {
			continue
		}
		b, ok := buf.(*Buffer)
		if !ok {
			return errors.Errorf("interp: buffer %d of type %T was not created by this runtime", ii, buf)
		}
		if b.device != d {
			return errors.Errorf("interp: buffer %d belongs to another device", ii)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		return errors.New("interp: command buffer already committed")
	}
	c.dispatches = append(c.dispatches, dispatch)
	return nil
}

// step is a dispatch resolved at commit.
type step struct {
	pipeline *PipelineState
	buffers  []*Buffer
	counts   [3]uint32
}

// Commit implements native.CommandBuffer: the dispatches are checked, and executed after the command buffers
// committed before on the same queue.
func (c *CommandBuffer) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		return errors.New("interp: command buffer already committed")
	}
	c.committed = true
	d := c.queue.device

	steps := make([]step, 0, len(c.dispatches))
	for _, dispatch := range c.dispatches {
		p := dispatch.Pipeline.(*PipelineState)
		counts, err := wgsl.Workgroups(dispatch.Grid, p.kernel.Workgroup, d.limits.MaxComputeWorkgroupsPerDimension)
		if err != nil {
			return errors.WithMessagef(err, "interp: kernel %q", p.kernel.Name)
		}
		bound, err := p.kernel.Bound(dispatch.Buffers)
		if err != nil {
			return errors.WithMessage(err, "interp")
		}
		s := step{pipeline: p, buffers: make([]*Buffer, len(bound)), counts: counts}
		for ii, b := range bound {
			s.buffers[ii] = b.(*Buffer)
		}
		steps = append(steps, s)
	}
	c.dispatches = nil

	c.done = make(chan struct{})
	previous := c.queue.enqueue(c.done)
	go c.run(previous, steps)
	return nil
}

// run executes the steps once the previous command buffer of the queue is done.
func (c *CommandBuffer) run(previous chan struct{}, steps []step) {
	defer close(c.done)
	if previous != nil {
		<-previous
	}
	d := c.queue.device
	d.execMu.Lock()
	defer d.execMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.err = errors.Errorf("interp: kernel execution panicked: %v", r)
		}
	}()
	for _, s := range steps {
		if err := s.execute(); err != nil {
			c.err = errors.WithMessagef(err, "interp: kernel %q", s.pipeline.kernel.Name)
			klog.V(1).Infof("%v", c.err)
			return
		}
	}
}

// execute runs all the invocations of the step. The buffers are shared with the interpreter, so the kernel
// writes land directly in them.
func (s step) execute() error {
	ctx := &shader.ExecutionContext{Buffers: make(map[shader.BindingKey][]byte, len(s.buffers))}
	for ii, binding := range s.pipeline.kernel.Bindings {
		data := s.buffers[ii].data
		if data == nil {
			return errors.Errorf("argument %d (%q) was released", binding.Index, binding.Name)
		}
		ctx.Buffers[shader.BindingKey{Group: wgsl.KernelGroup, Binding: binding.Index}] = data
	}
	return s.pipeline.library.module.DispatchCompute(s.pipeline.kernel.Name, ctx,
		s.counts[0], s.counts[1], s.counts[2])
}

// WaitUntilCompleted implements native.CommandBuffer. It returns the execution error of the kernels, if any.
func (c *CommandBuffer) WaitUntilCompleted(ctx context.Context) error {
	c.mu.Lock()
	committed, done := c.committed, c.done
	c.mu.Unlock()
	if !committed {
		return errors.New("interp: command buffer not committed")
	}
	if done == nil {
		// Commit failed.
		return errors.New("interp: command buffer failed at commit")
	}
	select {
	case <-done:
		return c.err
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// Release implements native.Releaser.
func (c *CommandBuffer) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches = nil
}
