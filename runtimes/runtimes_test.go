package runtimes

import (
	"fmt"
	"testing"

	"github.com/gomlx/gomtl/gpu"
	"github.com/gomlx/gomtl/interp"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

func TestNew(t *testing.T) {
	rt, err := New(" CPU ")
	require.NoError(t, err)
	fmt.Printf("cpu runtime: %s\n", rt.Name())
	devices, err := rt.Devices()
	require.NoError(t, err)
	require.NotEmpty(t, devices)
	require.NoError(t, rt.Close())

	rt, err = New(Interp)
	require.NoError(t, err)
	require.IsType(t, &interp.Runtime{}, rt)
	require.NoError(t, rt.Close())

	_, err = New("cuda")
	require.ErrorContains(t, err, "unknown runtime")
	_, err = New("gpu: ,")
	require.ErrorContains(t, err, "no backends")

	if gpu.BackendsLinked {
		require.Equal(t, GPU, Default())
		rt, err = New("gpu:software")
		require.NoError(t, err)
		require.Equal(t, "gpu:software", rt.Name())
		require.NoError(t, rt.Close())
	} else {
		require.Equal(t, Interp, Default())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(Env, Interp)
	rt, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, Interp, rt.Name())
	require.NoError(t, rt.Close())

	rt, err = Select("")
	require.NoError(t, err)
	require.Equal(t, Interp, rt.Name())
	require.NoError(t, rt.Close())

	t.Setenv(Env, "not-a-runtime")
	_, err = FromEnv()
	require.Error(t, err)
	_, err = Select(" ")
	require.Error(t, err)
	rt, err = Select(Interp)
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	require.Contains(t, FlagUsage(), Env)
}
