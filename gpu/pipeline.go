package gpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gomlx/gomtl/internal/wgsl"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// PipelineState is a compute pipeline built for one kernel, with the layout of its arguments.
type PipelineState struct {
	device   *Device
	library  *Library
	kernel   *wgsl.Kernel
	layout   hal.BindGroupLayout
	pipeline hal.PipelineLayout
	compute  hal.ComputePipeline
	released atomic.Bool
}

var _ native.PipelineState = (*PipelineState)(nil)

// NewComputePipelineState implements native.Device.
func (d *Device) NewComputePipelineState(fn native.Function) (native.PipelineState, error) {
	f, ok := fn.(*Function)
	if !ok {
		return nil, errors.Errorf("gpu: function of type %T was not created by this runtime", fn)
	}
	if f.library.device != d {
		return nil, errors.Errorf("gpu: function %q belongs to device %q, not %q", f.Name(),
			f.library.device.info.Name, d.info.Name)
	}
	k := f.kernel
	label := fmt.Sprintf("gomtl-%s", k.Name)

	entries := make([]gputypes.BindGroupLayoutEntry, len(k.Bindings))
	for ii, b := range k.Bindings {
		entries[ii] = gputypes.BindGroupLayoutEntry{
			Binding:    b.Index,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: b.Type},
		}
	}
	p := &PipelineState{device: d, library: f.library, kernel: k}
	var err error
	p.layout, err = d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: label, Entries: entries})
	if err != nil {
		return nil, errors.Wrapf(err, "gpu: failed to create bind group layout for %q", k.Name)
	}
	p.pipeline, err = d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []hal.BindGroupLayout{p.layout},
	})
	if err != nil {
		d.hal.DestroyBindGroupLayout(p.layout)
		return nil, errors.Wrapf(err, "gpu: failed to create pipeline layout for %q", k.Name)
	}
	p.compute, err = d.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   label,
		Layout:  p.pipeline,
		Compute: hal.ComputeState{Module: f.library.module, EntryPoint: k.Name},
	})
	if err != nil {
		d.hal.DestroyPipelineLayout(p.pipeline)
		d.hal.DestroyBindGroupLayout(p.layout)
		return nil, errors.Wrapf(err, "gpu: failed to create compute pipeline for %q", k.Name)
	}
	f.library.retain()
	return p, nil
}

// ThreadExecutionWidth implements native.PipelineState: it is the first dimension of the workgroup size.
func (p *PipelineState) ThreadExecutionWidth() uint32 { return p.kernel.Workgroup[0] }

// MaxTotalThreadsPerThreadgroup implements native.PipelineState: it is the number of invocations of one
// workgroup.
func (p *PipelineState) MaxTotalThreadsPerThreadgroup() uint32 {
	return p.kernel.Workgroup[0] * p.kernel.Workgroup[1] * p.kernel.Workgroup[2]
}

// Release implements native.Releaser.
func (p *PipelineState) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	dev := p.device.hal
	dev.DestroyComputePipeline(p.compute)
	dev.DestroyPipelineLayout(p.pipeline)
	dev.DestroyBindGroupLayout(p.layout)
	p.library.Release()
}
