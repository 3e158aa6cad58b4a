package gpu

import (
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/pkg/errors"
)

// BackendsEnv is the environment variable with the comma-separated list of backends to use, in order of
// preference. See BackendNames for the accepted values.
const BackendsEnv = "GOMTL_BACKENDS"

// Backend names.
const (
	BackendVulkan   = "vulkan"
	BackendMetal    = "metal"
	BackendDX12     = "dx12"
	BackendGL       = "gl"
	BackendSoftware = "software"
	BackendNoop     = "noop"
)

// BackendNames lists the accepted backend names.
func BackendNames() []string {
	return []string{BackendVulkan, BackendMetal, BackendDX12, BackendGL, BackendSoftware, BackendNoop}
}

// Config selects which HAL backends are used, and how devices are opened.
type Config struct {
	// Backends in order of preference: devices are enumerated backend by backend.
	// Backends not compiled in for the platform (or, with cgo, any backend but noop) are skipped.
	Backends []string

	// Limits requested when opening devices. If zero, gputypes.DefaultLimits() is used.
	Limits gputypes.Limits
}

// DefaultConfig uses the hardware backends first, and the software (CPU) backend last.
func DefaultConfig() Config {
	return Config{
		Backends: []string{BackendVulkan, BackendMetal, BackendDX12, BackendGL, BackendSoftware},
	}
}

// ConfigFromEnv returns DefaultConfig, with the backends overridden by $GOMTL_BACKENDS if set.
func ConfigFromEnv() Config {
	config := DefaultConfig()
	if value := os.Getenv(BackendsEnv); value != "" {
		config.Backends = ParseBackends(value)
	}
	return config
}

// ParseBackends splits a comma-separated list of backend names.
func ParseBackends(value string) []string {
	var backends []string
	for _, name := range strings.Split(value, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			backends = append(backends, name)
		}
	}
	return backends
}

// halBackend returns the HAL backend for name. It returns found=false for known backends not available in
// the build, and an error for unknown names.
func halBackend(name string) (backend hal.Backend, found bool, err error) {
	var variant gputypes.Backend
	switch name {
	case BackendSoftware:
		backend, found = softwareBackend()
		return backend, found, nil
	case BackendNoop:
		return noop.API{}, true, nil
	case BackendVulkan:
		variant = gputypes.BackendVulkan
	case BackendMetal:
		variant = gputypes.BackendMetal
	case BackendDX12:
		variant = gputypes.BackendDX12
	case BackendGL, "gles", "opengl":
		variant = gputypes.BackendGL
	default:
		return nil, false, errors.Errorf("unknown backend %q, valid values are %q", name, BackendNames())
	}
	backend, found = hal.GetBackend(variant)
	return backend, found, nil
}
