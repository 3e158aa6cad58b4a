package wgsl

import (
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gomlx/gomtl/native"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct{ native.Buffer }

func TestCompile(t *testing.T) {
	t.Run("Reflection", func(t *testing.T) {
		m, err := Compile(`
struct Params { scale: f32 }
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(8, 4)
fn scale(@builtin(global_invocation_id) id: vec3<u32>) {
    y[id.x] = x[id.x] * params.scale;
}

@compute @workgroup_size(1)
fn zero(@builtin(global_invocation_id) id: vec3<u32>) {
    y[id.x] = 0.0;
}
`)
		require.NoError(t, err)
		require.NotEmpty(t, m.SPIRV)
		require.Equal(t, []string{"scale", "zero"}, m.KernelNames())

		k := m.Kernels["scale"]
		require.Equal(t, [3]uint32{8, 4, 1}, k.Workgroup)
		require.Equal(t, []Binding{
			{Index: 0, Name: "x", Type: gputypes.BufferBindingTypeReadOnlyStorage, ReadOnly: true},
			{Index: 1, Name: "y", Type: gputypes.BufferBindingTypeStorage},
			{Index: 2, Name: "params", Type: gputypes.BufferBindingTypeUniform, ReadOnly: true},
		}, k.Bindings)

		// Only the buffers used by the kernel are arguments.
		k = m.Kernels["zero"]
		require.Equal(t, []Binding{{Index: 1, Name: "y", Type: gputypes.BufferBindingTypeStorage}}, k.Bindings)

		a, b := &fakeBuffer{}, &fakeBuffer{}
		bound, err := k.Bound([]native.Buffer{a, b})
		require.NoError(t, err)
		require.Equal(t, []native.Buffer{b}, bound)
		_, err = k.Bound([]native.Buffer{a})
		require.ErrorContains(t, err, "argument 1")
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := Compile("fn broken( {")
		require.Error(t, err)
		fmt.Printf("\tExpected error: %v\n", err)

		_, err = Compile(" \n")
		require.ErrorContains(t, err, "empty")

		_, err = Compile(`
@group(1) @binding(0) var<storage, read_write> y: array<f32>;
@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) { y[id.x] = 1.0; }
`)
		require.ErrorContains(t, err, "@group(0)")
	})
}

func TestWorkgroups(t *testing.T) {
	counts, err := Workgroups(native.Size{Width: 10, Height: 0, Depth: 1}, [3]uint32{4, 1, 1}, 65535)
	require.NoError(t, err)
	require.Equal(t, [3]uint32{3, 1, 1}, counts)

	_, err = Workgroups(native.Size{Width: 100, Height: 1, Depth: 1}, [3]uint32{1, 1, 1}, 10)
	require.Error(t, err)
}
