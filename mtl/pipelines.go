package mtl

import (
	"github.com/gomlx/gomtl/native"
	"k8s.io/klog/v2"
)

type pipelineState struct {
	native       native.PipelineState
	device       *device
	functionName string
	lease        *lease
}

func releasePipelineState(p *pipelineState) {
	if p.lease.drop() {
		klog.V(1).Infof("pipeline state for %q freed while in use by uncompleted command buffers, release deferred",
			p.functionName)
	}
}

// NewComputePipelineState builds a pipeline state for the function on the device.
//
// The function must come from a library compiled on the same device. An invalid function handle, a function of
// another device, or a pipeline rejected by the device return a PipelineBuildError.
func (r *Registry) NewComputePipelineState(deviceHandle, functionHandle Handle) (Handle, error) {
	d, err := r.getDevice(deviceHandle, "NewComputePipelineState")
	if err != nil {
		return InvalidHandleValue, err
	}
	f, err := r.functions.Get(functionHandle)
	if err != nil {
		return InvalidHandleValue, r.wrapf(PipelineBuildError, err, "NewComputePipelineState with invalid function")
	}
	if f.library.device != d {
		return InvalidHandleValue, r.errorf(PipelineBuildError,
			"function %q belongs to a library compiled on device #%d %q, not on device #%d %q",
			f.native.Name(), f.library.device.index, f.library.device.name, d.index, d.name)
	}
	nativePipeline, err := d.native.NewComputePipelineState(f.native)
	if err != nil {
		return InvalidHandleValue, r.wrapf(PipelineBuildError, err, "failed to build pipeline for function %q on device %q",
			f.native.Name(), d.name)
	}
	p := &pipelineState{native: nativePipeline, device: d, functionName: f.native.Name()}
	p.lease = newLease(nativePipeline.Release)
	return r.pipelineStates.HandleOf(p), nil
}

func (r *Registry) getPipelineState(h Handle, op string) (*pipelineState, error) {
	p, err := r.pipelineStates.Get(h)
	if err != nil {
		return nil, r.invalidHandle(err, op)
	}
	return p, nil
}

// ComputePipelineStateDevice returns a new handle to the device of the pipeline. The caller must free it.
func (r *Registry) ComputePipelineStateDevice(h Handle) (Handle, error) {
	p, err := r.getPipelineState(h, "ComputePipelineStateDevice")
	if err != nil {
		return InvalidHandleValue, err
	}
	return r.deviceHandle(p.device), nil
}

// CopyComputePipelineState returns a new handle (alias) to the same pipeline state.
func (r *Registry) CopyComputePipelineState(h Handle) (Handle, error) {
	alias, err := r.pipelineStates.Copy(h)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "CopyComputePipelineState")
	}
	return alias, nil
}

// SameComputePipelineState reports whether both handles refer to the same pipeline state.
func (r *Registry) SameComputePipelineState(h1, h2 Handle) (bool, error) {
	same, err := r.pipelineStates.Same(h1, h2)
	if err != nil {
		return false, r.invalidHandle(err, "SameComputePipelineState")
	}
	return same, nil
}

// ThreadExecutionWidth returns the number of threads the pipeline runs together in the first dimension.
func (r *Registry) ThreadExecutionWidth(h Handle) (uint32, error) {
	p, err := r.getPipelineState(h, "ThreadExecutionWidth")
	if err != nil {
		return 0, err
	}
	return p.native.ThreadExecutionWidth(), nil
}

// MaxTotalThreadsPerThreadgroup returns the number of threads of one threadgroup of the pipeline.
func (r *Registry) MaxTotalThreadsPerThreadgroup(h Handle) (uint32, error) {
	p, err := r.getPipelineState(h, "MaxTotalThreadsPerThreadgroup")
	if err != nil {
		return 0, err
	}
	return p.native.MaxTotalThreadsPerThreadgroup(), nil
}

// FreeComputePipelineState frees the handle.
func (r *Registry) FreeComputePipelineState(h Handle) {
	r.pipelineStates.Free(h)
}
