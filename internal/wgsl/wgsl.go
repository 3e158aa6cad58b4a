// Package wgsl compiles WGSL kernels to SPIR-V with naga, and reflects their arguments.
//
// It is shared by the runtimes: package gpu creates HAL shader modules from the SPIR-V words, and package
// interp executes them with the SPIR-V interpreter.
package wgsl

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
)

// KernelGroup is the bind group holding the kernel arguments.
const KernelGroup = 0

// Binding is one buffer argument of a kernel.
type Binding struct {
	Index    uint32
	Name     string
	Type     gputypes.BufferBindingType
	ReadOnly bool
}

// Kernel is the reflection of one compute entry point.
type Kernel struct {
	Name string

	// Workgroup is the @workgroup_size. Missing dimensions are 1.
	Workgroup [3]uint32

	// Bindings used by the kernel, sorted by index.
	Bindings []Binding
}

// Module is a compiled WGSL source.
type Module struct {
	// SPIRV words, version 1.3.
	SPIRV []uint32

	// Kernels by name.
	Kernels map[string]*Kernel
}

// KernelNames returns the sorted names of the compute entry points.
func (m *Module) KernelNames() []string {
	names := make([]string, 0, len(m.Kernels))
	for name := range m.Kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile parses, validates and compiles the source, and reflects its compute entry points.
func Compile(source string) (*Module, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("empty WGSL source")
	}
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, errors.Wrap(err, "parsing WGSL")
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, errors.Wrap(err, "lowering WGSL")
	}
	diagnostics, err := naga.Validate(module)
	if err != nil {
		return nil, errors.Wrap(err, "validating WGSL")
	}
	if len(diagnostics) > 0 {
		messages := make([]string, len(diagnostics))
		for ii, diagnostic := range diagnostics {
			messages[ii] = diagnostic.Error()
		}
		return nil, errors.Errorf("invalid WGSL:\n\t%s", strings.Join(messages, "\n\t"))
	}
	kernels, err := reflectKernels(module)
	if err != nil {
		return nil, err
	}
	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, err
	}
	if len(code)%4 != 0 {
		return nil, errors.Errorf("SPIR-V output has %d bytes, not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for ii := range words {
		words[ii] = binary.LittleEndian.Uint32(code[ii*4:])
	}
	return &Module{SPIRV: words, Kernels: kernels}, nil
}

// reflectKernels lists the compute entry points with the group 0 buffers they use. Globals used by the helper
// functions are assumed used by every kernel.
func reflectKernels(module *ir.Module) (map[string]*Kernel, error) {
	for _, global := range module.GlobalVariables {
		if global.Binding == nil {
			continue
		}
		if global.Binding.Group != KernelGroup {
			return nil, errors.Errorf("global %q is bound to @group(%d): kernel arguments must be in @group(%d)",
				global.Name, global.Binding.Group, KernelGroup)
		}
		if global.Space != ir.SpaceStorage && global.Space != ir.SpaceUniform {
			return nil, errors.Errorf("global %q at @binding(%d) is not a buffer: only storage and uniform buffers "+
				"are supported as kernel arguments", global.Name, global.Binding.Binding)
		}
	}

	shared := make(map[ir.GlobalVariableHandle]bool)
	for _, fn := range module.Functions {
		collectGlobals(fn, shared)
	}

	kernels := make(map[string]*Kernel)
	for _, entry := range module.EntryPoints {
		if entry.Stage != ir.StageCompute {
			continue
		}
		used := make(map[ir.GlobalVariableHandle]bool, len(shared))
		for h := range shared {
			used[h] = true
		}
		collectGlobals(entry.Function, used)

		k := &Kernel{Name: entry.Name, Workgroup: entry.Workgroup}
		for ii := range k.Workgroup {
			k.Workgroup[ii] = max(k.Workgroup[ii], 1)
		}
		for h := range used {
			if int(h) >= len(module.GlobalVariables) {
				continue
			}
			global := module.GlobalVariables[h]
			if global.Binding == nil {
				continue
			}
			b := Binding{Index: global.Binding.Binding, Name: global.Name}
			switch {
			case global.Space == ir.SpaceUniform:
				b.Type = gputypes.BufferBindingTypeUniform
				b.ReadOnly = true
			case global.Access == ir.StorageRead:
				b.Type = gputypes.BufferBindingTypeReadOnlyStorage
				b.ReadOnly = true
			default:
				b.Type = gputypes.BufferBindingTypeStorage
			}
			k.Bindings = append(k.Bindings, b)
		}
		sort.Slice(k.Bindings, func(i, j int) bool { return k.Bindings[i].Index < k.Bindings[j].Index })
		kernels[k.Name] = k
	}
	return kernels, nil
}

func collectGlobals(fn ir.Function, used map[ir.GlobalVariableHandle]bool) {
	for _, expr := range fn.Expressions {
		if global, ok := expr.Kind.(ir.ExprGlobalVariable); ok {
			used[global.Variable] = true
		}
	}
}

// Workgroups returns the number of workgroups to cover the grid in each dimension. Empty dimensions count
// as 1 thread. limit is the maximum per dimension, 0 for no limit.
func Workgroups(grid native.Size, size [3]uint32, limit uint32) (counts [3]uint32, err error) {
	dims := [3]uint32{grid.Width, grid.Height, grid.Depth}
	for ii, dim := range dims {
		dim = max(dim, 1)
		counts[ii] = (dim + size[ii] - 1) / size[ii]
		if limit > 0 && counts[ii] > limit {
			return counts, errors.Errorf("grid %v needs %d workgroups in dimension %d, the device limit is %d",
				dims, counts[ii], ii, limit)
		}
	}
	return counts, nil
}

// Bound returns the buffers of a dispatch in the order of the kernel bindings. It fails if an argument used
// by the kernel has no buffer.
func (k *Kernel) Bound(buffers []native.Buffer) ([]native.Buffer, error) {
	bound := make([]native.Buffer, len(k.Bindings))
	for ii, binding := range k.Bindings {
		idx := int(binding.Index)
		if idx >= len(buffers) || buffers[idx] == nil {
			return nil, errors.Errorf("kernel %q argument %d (%q) has no buffer bound", k.Name, binding.Index,
				binding.Name)
		}
		bound[ii] = buffers[idx]
	}
	return bound, nil
}
