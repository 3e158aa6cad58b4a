package interp

import (
	"github.com/gogpu/wgpu/hal/software/shader"
	"github.com/gomlx/gomtl/internal/wgsl"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// Library is a compiled WGSL module, parsed for the interpreter.
type Library struct {
	device   *Device
	compiled *wgsl.Module
	module   *shader.Module
}

var _ native.Library = (*Library)(nil)

// NewLibrary implements native.Device: it compiles the WGSL source with naga, and parses the SPIR-V for the
// interpreter.
func (d *Device) NewLibrary(source string) (native.Library, error) {
	compiled, err := wgsl.Compile(source)
	if err != nil {
		return nil, err
	}
	module, err := shader.ParseModule(compiled.SPIRV)
	if err != nil {
		return nil, errors.Wrap(err, "interp: parsing SPIR-V")
	}
	for _, name := range compiled.KernelNames() {
		if _, found := module.EntryPoints[name]; !found {
			return nil, errors.Errorf("interp: entry point %q missing from the SPIR-V module", name)
		}
	}
	return &Library{device: d, compiled: compiled, module: module}, nil
}

// Release implements native.Releaser. The parsed module is garbage collected.
func (l *Library) Release() {}

// FunctionNames implements native.Library. The names are sorted.
func (l *Library) FunctionNames() []string {
	return l.compiled.KernelNames()
}

// Function implements native.Library. Only compute entry points are exposed.
func (l *Library) Function(name string) (native.Function, error) {
	k, found := l.compiled.Kernels[name]
	if !found {
		return nil, errors.Errorf("interp: library has no compute function %q (available: %q)", name,
			l.FunctionNames())
	}
	return &Function{library: l, kernel: k}, nil
}

// Function is a compute entry point of a Library.
type Function struct {
	library *Library
	kernel  *wgsl.Kernel
}

var _ native.Function = (*Function)(nil)

// Name implements native.Function.
func (f *Function) Name() string { return f.kernel.Name }

// Release implements native.Releaser.
func (f *Function) Release() {}

// PipelineState is a kernel ready to be dispatched.
type PipelineState struct {
	library *Library
	kernel  *wgsl.Kernel
}

var _ native.PipelineState = (*PipelineState)(nil)

// NewComputePipelineState implements native.Device.
func (d *Device) NewComputePipelineState(fn native.Function) (native.PipelineState, error) {
	f, ok := fn.(*Function)
	if !ok {
		return nil, errors.Errorf("interp: function of type %T was not created by this runtime", fn)
	}
	if f.library.device != d {
		return nil, errors.Errorf("interp: function %q belongs to another device", f.Name())
	}
	return &PipelineState{library: f.library, kernel: f.kernel}, nil
}

// ThreadExecutionWidth implements native.PipelineState: it is the first dimension of the workgroup size.
func (p *PipelineState) ThreadExecutionWidth() uint32 { return p.kernel.Workgroup[0] }

// MaxTotalThreadsPerThreadgroup implements native.PipelineState.
func (p *PipelineState) MaxTotalThreadsPerThreadgroup() uint32 {
	return p.kernel.Workgroup[0] * p.kernel.Workgroup[1] * p.kernel.Workgroup[2]
}

// Release implements native.Releaser.
func (p *PipelineState) Release() {}
