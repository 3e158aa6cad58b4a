package gpu

import (
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
	"github.com/gomlx/gomtl/internal/wgsl"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// KernelGroup is the bind group holding the kernel arguments.
const KernelGroup = wgsl.KernelGroup

// Binding is one buffer argument of a kernel.
type Binding = wgsl.Binding

// Library is a compiled WGSL module. Functions and pipelines created from it keep it alive.
type Library struct {
	device   *Device
	module   hal.ShaderModule
	compiled *wgsl.Module
	refs     atomic.Int32
}

var _ native.Library = (*Library)(nil)

// NewLibrary implements native.Device: it compiles the WGSL source with naga and creates the shader module.
func (d *Device) NewLibrary(source string) (native.Library, error) {
	if err := d.open(); err != nil {
		return nil, err
	}
	compiled, err := wgsl.Compile(source)
	if err != nil {
		return nil, err
	}
	module, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "gomtl-library",
		Source: hal.ShaderSource{SPIRV: compiled.SPIRV},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "gpu: failed to create shader module on device %q", d.info.Name)
	}
	l := &Library{device: d, module: module, compiled: compiled}
	l.refs.Store(1)
	return l, nil
}

func (l *Library) retain() { l.refs.Add(1) }

// Release implements native.Releaser. The shader module is destroyed once the functions and pipelines created
// from the library are also released.
func (l *Library) Release() {
	if l.refs.Add(-1) == 0 {
		l.device.hal.DestroyShaderModule(l.module)
	}
}

// FunctionNames implements native.Library. The names are sorted.
func (l *Library) FunctionNames() []string {
	return l.compiled.KernelNames()
}

// Function implements native.Library. Only compute entry points are exposed.
func (l *Library) Function(name string) (native.Function, error) {
	k, found := l.compiled.Kernels[name]
	if !found {
		return nil, errors.Errorf("gpu: library has no compute function %q (available: %q)", name, l.FunctionNames())
	}
	l.retain()
	return &Function{library: l, kernel: k}, nil
}

// Function is a compute entry point of a Library.
type Function struct {
	library  *Library
	kernel   *wgsl.Kernel
	released atomic.Bool
}

var _ native.Function = (*Function)(nil)

// Name implements native.Function.
func (f *Function) Name() string { return f.kernel.Name }

// Bindings returns the buffer arguments of the kernel, sorted by index.
func (f *Function) Bindings() []Binding { return f.kernel.Bindings }

// WorkgroupSize returns the @workgroup_size of the kernel. Missing dimensions are 1.
func (f *Function) WorkgroupSize() [3]uint32 { return f.kernel.Workgroup }

// Release implements native.Releaser.
func (f *Function) Release() {
	if f.released.CompareAndSwap(false, true) {
		f.library.Release()
	}
}
