package mtl

import (
	"context"
	"sync"
	"time"

	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CommandBufferStatus is the stage of a command buffer in its lifecycle.
type CommandBufferStatus int

//go:generate go tool enumer -type=CommandBufferStatus -trimprefix=Status commands.go

const (
	// StatusNotEnqueued: encoders can still be created.
	StatusNotEnqueued CommandBufferStatus = iota

	// StatusCommitted: submitted, not completed yet.
	StatusCommitted

	// StatusCompleted: the work finished successfully.
	StatusCompleted

	// StatusError: submission or execution failed.
	StatusError
)

type commandBuffer struct {
	native native.CommandBuffer
	queue  *commandQueue
	lease  *lease

	mu          sync.Mutex
	status      CommandBufferStatus
	freed       bool
	openEncoder *commandEncoder
	dispatches  int
	held        []*lease // Buffers and pipelines of the encoded dispatches.
	done        chan struct{}
	err         error
}

func releaseCommandBuffer(cb *commandBuffer) {
	cb.mu.Lock()
	cb.freed = true
	var held []*lease
	if cb.status == StatusNotEnqueued {
		held = cb.held
		cb.held = nil
	}
	cb.mu.Unlock()
	letGoAll(held)
	if cb.lease.drop() {
		klog.V(2).Infof("command buffer freed before completion, release deferred")
	}
}

// recordedDispatch is a dispatch configured in an encoder, with the leases on the objects it uses.
type recordedDispatch struct {
	dispatch native.Dispatch
	held     []*lease
}

type commandEncoder struct {
	commandBuffer *commandBuffer

	mu         sync.Mutex
	ended      bool
	pipeline   *pipelineState
	bindings   map[uint32]*buffer
	dispatches []recordedDispatch
}

// releaseCommandEncoder discards an encoder that was not ended.
func releaseCommandEncoder(enc *commandEncoder) {
	enc.mu.Lock()
	if enc.ended {
		enc.mu.Unlock()
		return
	}
	enc.ended = true
	dispatches := enc.dispatches
	enc.dispatches = nil
	enc.mu.Unlock()

	for _, d := range dispatches {
		letGoAll(d.held)
	}
	cb := enc.commandBuffer
	cb.mu.Lock()
	if cb.openEncoder == enc {
		cb.openEncoder = nil
	}
	cb.mu.Unlock()
	if len(dispatches) > 0 {
		klog.V(1).Infof("command encoder freed before EndEncoding: %d dispatches discarded", len(dispatches))
	}
}

// NewCommandBuffer creates a command buffer on the queue.
func (r *Registry) NewCommandBuffer(queueHandle Handle) (Handle, error) {
	q, err := r.commandQueues.Get(queueHandle)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "NewCommandBuffer")
	}
	nativeCB, err := q.native.NewCommandBuffer()
	if err != nil {
		return InvalidHandleValue, r.wrapf(SubmissionError, err, "failed to create command buffer on device %q",
			q.device.name)
	}
	cb := &commandBuffer{native: nativeCB, queue: q}
	cb.lease = newLease(nativeCB.Release)
	return r.commandBuffers.HandleOf(cb), nil
}

func (r *Registry) getCommandBuffer(h Handle, op string) (*commandBuffer, error) {
	cb, err := r.commandBuffers.Get(h)
	if err != nil {
		return nil, r.invalidHandle(err, op)
	}
	return cb, nil
}

// CommandBufferDevice returns a new handle to the device of the command buffer. The caller must free it.
func (r *Registry) CommandBufferDevice(h Handle) (Handle, error) {
	cb, err := r.getCommandBuffer(h, "CommandBufferDevice")
	if err != nil {
		return InvalidHandleValue, err
	}
	return r.deviceHandle(cb.queue.device), nil
}

// CopyCommandBuffer returns a new handle (alias) to the same command buffer.
func (r *Registry) CopyCommandBuffer(h Handle) (Handle, error) {
	alias, err := r.commandBuffers.Copy(h)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "CopyCommandBuffer")
	}
	return alias, nil
}

// SameCommandBuffer reports whether both handles refer to the same command buffer.
func (r *Registry) SameCommandBuffer(h1, h2 Handle) (bool, error) {
	same, err := r.commandBuffers.Same(h1, h2)
	if err != nil {
		return false, r.invalidHandle(err, "SameCommandBuffer")
	}
	return same, nil
}

// CommandBufferStatus returns the lifecycle stage of the command buffer.
func (r *Registry) CommandBufferStatus(h Handle) (CommandBufferStatus, error) {
	cb, err := r.getCommandBuffer(h, "CommandBufferStatus")
	if err != nil {
		return StatusError, err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status, nil
}

// FreeCommandBuffer frees the handle. Committed work still runs to completion.
func (r *Registry) FreeCommandBuffer(h Handle) {
	r.commandBuffers.Free(h)
}

// NewCommandEncoder creates a compute encoder on the command buffer. The command buffer must not be committed,
// and its previous encoder, if any, must have been ended (or freed).
func (r *Registry) NewCommandEncoder(commandBufferHandle Handle) (Handle, error) {
	cb, err := r.getCommandBuffer(commandBufferHandle, "NewCommandEncoder")
	if err != nil {
		return InvalidHandleValue, err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != StatusNotEnqueued {
		return InvalidHandleValue, r.errorf(InvalidState, "NewCommandEncoder: command buffer is %s", cb.status)
	}
	if cb.openEncoder != nil {
		return InvalidHandleValue, r.errorf(InvalidState,
			"NewCommandEncoder: command buffer already has an encoder, call EndEncoding on it first")
	}
	enc := &commandEncoder{commandBuffer: cb, bindings: make(map[uint32]*buffer)}
	cb.openEncoder = enc
	return r.commandEncoders.HandleOf(enc), nil
}

// getOpenEncoder returns the encoder locked: the caller must unlock it.
func (r *Registry) getOpenEncoder(h Handle, op string) (*commandEncoder, error) {
	enc, err := r.commandEncoders.Get(h)
	if err != nil {
		return nil, r.invalidHandle(err, op)
	}
	enc.mu.Lock()
	if enc.ended {
		enc.mu.Unlock()
		return nil, r.errorf(InvalidState, "%s: encoding has already ended", op)
	}
	return enc, nil
}

// CommandEncoderDevice returns a new handle to the device of the encoder. The caller must free it.
func (r *Registry) CommandEncoderDevice(h Handle) (Handle, error) {
	enc, err := r.commandEncoders.Get(h)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "CommandEncoderDevice")
	}
	return r.deviceHandle(enc.commandBuffer.queue.device), nil
}

// FreeCommandEncoder frees the handle. If encoding had not ended, the configured dispatches are discarded.
func (r *Registry) FreeCommandEncoder(h Handle) {
	r.commandEncoders.Free(h)
}

// SetComputePipelineState binds the pipeline used by the following SetThreadsAndShape calls. Binding again
// replaces it.
func (r *Registry) SetComputePipelineState(encoderHandle, pipelineHandle Handle) error {
	p, err := r.getPipelineState(pipelineHandle, "SetComputePipelineState")
	if err != nil {
		return err
	}
	enc, err := r.getOpenEncoder(encoderHandle, "SetComputePipelineState")
	if err != nil {
		return err
	}
	defer enc.mu.Unlock()
	if p.device != enc.commandBuffer.queue.device {
		return r.errorf(InvalidHandle, "SetComputePipelineState: pipeline of device %q used on a command buffer of device %q",
			p.device.name, enc.commandBuffer.queue.device.name)
	}
	enc.pipeline = p
	return nil
}

// SetBuffer binds the buffer at the index of the kernel arguments. Binding the same index again replaces it.
// The index is not checked against the kernel: mismatches fail when the work is submitted.
func (r *Registry) SetBuffer(encoderHandle, bufferHandle Handle, index uint32) error {
	b, err := r.getBuffer(bufferHandle, "SetBuffer")
	if err != nil {
		return err
	}
	enc, err := r.getOpenEncoder(encoderHandle, "SetBuffer")
	if err != nil {
		return err
	}
	defer enc.mu.Unlock()
	if b.device != enc.commandBuffer.queue.device {
		return r.errorf(InvalidHandle, "SetBuffer: buffer of device %q used on a command buffer of device %q",
			b.device.name, enc.commandBuffer.queue.device.name)
	}
	enc.bindings[index] = b
	return nil
}

// SetThreadsAndShape configures a dispatch of width x height x depth threads of the bound pipeline, with the
// buffers currently bound. Dimensions given as 0 are taken as 1.
//
// The pipeline argument must be a valid pipeline state: it is the one used to size the threadgroups, and it is
// normally the same as the one bound with SetComputePipelineState.
func (r *Registry) SetThreadsAndShape(encoderHandle, pipelineHandle Handle, width, height, depth uint32) error {
	p, err := r.getPipelineState(pipelineHandle, "SetThreadsAndShape")
	if err != nil {
		return err
	}
	enc, err := r.getOpenEncoder(encoderHandle, "SetThreadsAndShape")
	if err != nil {
		return err
	}
	defer enc.mu.Unlock()
	if enc.pipeline == nil {
		return r.errorf(InvalidState, "SetThreadsAndShape: no compute pipeline state bound, call SetComputePipelineState first")
	}
	if enc.pipeline != p {
		klog.V(2).Infof("SetThreadsAndShape: pipeline for %q given, but pipeline for %q is bound: dispatching the bound one",
			p.functionName, enc.pipeline.functionName)
	}

	d := recordedDispatch{dispatch: native.Dispatch{
		Pipeline: enc.pipeline.native,
		Grid:     native.Size{Width: max(width, 1), Height: max(height, 1), Depth: max(depth, 1)},
	}}
	if !enc.pipeline.lease.hold() {
		return r.errorf(InvalidHandle, "SetThreadsAndShape: bound pipeline state has been freed")
	}
	d.held = append(d.held, enc.pipeline.lease)
	var maxIndex uint32
	for index := range enc.bindings {
		maxIndex = max(maxIndex, index+1)
	}
	d.dispatch.Buffers = make([]native.Buffer, maxIndex)
	for index, b := range enc.bindings {
		if !b.lease.hold() {
			letGoAll(d.held)
			return r.errorf(InvalidHandle, "SetThreadsAndShape: buffer bound at index %d has been freed", index)
		}
		d.held = append(d.held, b.lease)
		d.dispatch.Buffers[index] = b.native
	}
	enc.dispatches = append(enc.dispatches, d)
	return nil
}

// EndEncoding finishes the encoder: its dispatches are recorded in the command buffer, and the encoder accepts
// no further calls.
func (r *Registry) EndEncoding(encoderHandle Handle) error {
	enc, err := r.getOpenEncoder(encoderHandle, "EndEncoding")
	if err != nil {
		return err
	}
	defer enc.mu.Unlock()
	enc.ended = true
	dispatches := enc.dispatches
	enc.dispatches = nil

	cb := enc.commandBuffer
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.openEncoder == enc {
		cb.openEncoder = nil
	}
	if cb.freed || cb.status != StatusNotEnqueued {
		for _, d := range dispatches {
			letGoAll(d.held)
		}
		return r.errorf(InvalidState, "EndEncoding: command buffer has been freed or committed")
	}
	for ii, d := range dispatches {
		if err := cb.native.Encode(d.dispatch); err != nil {
			for _, rest := range dispatches[ii:] {
				letGoAll(rest.held)
			}
			return r.wrapf(SubmissionError, err, "EndEncoding: failed to encode dispatch #%d", ii)
		}
		cb.held = append(cb.held, d.held...)
		cb.dispatches++
	}
	return nil
}

// CommitCommandBuffer submits the command buffer to its queue, and returns without waiting. Command buffers of
// the same queue execute in commit order.
func (r *Registry) CommitCommandBuffer(h Handle) error {
	cb, err := r.getCommandBuffer(h, "CommitCommandBuffer")
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != StatusNotEnqueued {
		return r.errorf(InvalidState, "CommitCommandBuffer: command buffer is already %s", cb.status)
	}
	if cb.openEncoder != nil {
		return r.errorf(InvalidState, "CommitCommandBuffer: an encoder is still open, call EndEncoding first")
	}
	if !cb.lease.hold() {
		return r.errorf(InvalidHandle, "CommitCommandBuffer: command buffer has been freed")
	}
	if err := cb.native.Commit(); err != nil {
		cb.status = StatusError
		cb.err = err
		held := cb.held
		cb.held = nil
		letGoAll(held)
		cb.lease.letGo()
		return r.wrapf(SubmissionError, err, "failed to commit command buffer on device %q", cb.queue.device.name)
	}
	cb.status = StatusCommitted
	cb.done = make(chan struct{})
	held := cb.held
	cb.held = nil
	klog.V(2).Infof("command buffer committed with %d dispatches on device %q", cb.dispatches, cb.queue.device.name)

	r.inflight.Add(1)
	go r.watchCompletion(cb, held, time.Now())
	return nil
}

// watchCompletion waits for the command buffer to complete, records the outcome, and lets go of the objects it
// used.
func (r *Registry) watchCompletion(cb *commandBuffer, held []*lease, start time.Time) {
	defer r.inflight.Done()
	err := cb.native.WaitUntilCompleted(context.Background())
	r.completionSeconds.Observe(time.Since(start).Seconds())

	cb.mu.Lock()
	if err != nil {
		cb.status = StatusError
		cb.err = err
		klog.Errorf("command buffer on device %q failed: %+v", cb.queue.device.name, err)
	} else {
		cb.status = StatusCompleted
	}
	close(cb.done)
	cb.mu.Unlock()

	letGoAll(held)
	cb.lease.letGo()
}

// WaitForCompletion blocks until the committed command buffer completes, ctx is done, or the registry's wait
// timeout (see WithWaitTimeout) elapses. Only the wait is interrupted: committed work always runs to completion.
//
// It fails with InvalidState if the command buffer was not committed. Calling it again after completion returns
// the same result immediately.
func (r *Registry) WaitForCompletion(ctx context.Context, h Handle) error {
	cb, err := r.getCommandBuffer(h, "WaitForCompletion")
	if err != nil {
		return err
	}
	cb.mu.Lock()
	status, done, commitErr := cb.status, cb.done, cb.err
	cb.mu.Unlock()
	if status == StatusNotEnqueued {
		return r.errorf(InvalidState, "WaitForCompletion: command buffer has not been committed")
	}
	if done == nil {
		// Commit itself failed.
		return r.wrapf(SubmissionError, commitErr, "WaitForCompletion: command buffer failed to commit")
	}

	if r.config.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.waitTimeout)
		defer cancel()
	}
	select {
	case <-done:
	case <-ctx.Done():
		return r.wrapf(SubmissionError, errors.WithStack(ctx.Err()), "WaitForCompletion interrupted")
	}
	cb.mu.Lock()
	err = cb.err
	cb.mu.Unlock()
	if err != nil {
		return r.wrapf(SubmissionError, err, "command buffer on device %q failed", cb.queue.device.name)
	}
	return nil
}
