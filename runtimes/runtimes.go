// Package runtimes creates the native runtime (see package native) selected by name.
//
// The names are:
//
//   - "gpu": the gogpu HAL backends of package gpu, configured by $GOMTL_BACKENDS.
//   - "gpu:<backends>": the same, with the comma-separated list of backends given, e.g. "gpu:vulkan,software".
//   - "interp": the SPIR-V interpreter of package interp.
//   - "cpu": the runtime that runs kernels on the CPU in this build: "gpu:software", or "interp" in builds
//     with cgo, where the gpu backends are not linked (see gpu.BackendsLinked).
package runtimes

import (
	"os"
	"strings"

	"github.com/gomlx/gomtl/gpu"
	"github.com/gomlx/gomtl/interp"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Env is the environment variable with the name of the runtime used by FromEnv.
const Env = "GOMTL_RUNTIME"

// Runtime names.
const (
	GPU    = "gpu"
	Interp = interp.Name
	CPU    = "cpu"
)

// Names lists the accepted runtime names, without the backends variations of GPU.
func Names() []string {
	return []string{GPU, Interp, CPU}
}

// Default returns the name of the runtime used when none is configured: GPU, or Interp in builds with cgo.
func Default() string {
	if gpu.BackendsLinked {
		return GPU
	}
	return Interp
}

// New creates the runtime with the given name. See the package documentation for the accepted names.
func New(name string) (native.Runtime, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == CPU {
		if gpu.BackendsLinked {
			name = GPU + ":" + gpu.BackendSoftware
		} else {
			name = Interp
		}
	}
	klog.V(1).Infof("runtimes: creating runtime %q", name)
	switch {
	case name == Interp:
		return interp.New(), nil
	case name == GPU:
		return gpu.New(gpu.ConfigFromEnv())
	case strings.HasPrefix(name, GPU+":"):
		config := gpu.DefaultConfig()
		config.Backends = gpu.ParseBackends(strings.TrimPrefix(name, GPU+":"))
		if len(config.Backends) == 0 {
			return nil, errors.Errorf("runtime %q lists no backends", name)
		}
		return gpu.New(config)
	default:
		return nil, errors.Errorf("unknown runtime %q, valid values are %q (or %q)", name, Names(),
			GPU+":<backends>")
	}
}

// FromEnv creates the runtime named by $GOMTL_RUNTIME, or the Default one if it is not set.
func FromEnv() (native.Runtime, error) {
	name := os.Getenv(Env)
	if name == "" {
		name = Default()
	}
	return New(name)
}

// Select creates the runtime with the given name, typically from a command line flag, or the one of FromEnv
// if name is empty.
func Select(name string) (native.Runtime, error) {
	if strings.TrimSpace(name) == "" {
		return FromEnv()
	}
	return New(name)
}

// FlagUsage is the usage string for command line flags holding a runtime name, for use with Select.
func FlagUsage() string {
	return "Runtime to use: \"gpu\", \"gpu:<backends>\" (e.g. \"gpu:vulkan,software\"), \"interp\" or \"cpu\". " +
		"Defaults to $" + Env + " or \"" + Default() + "\"."
}
