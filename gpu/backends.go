//go:build !cgo

package gpu

import (
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/software"

	// Registers the platform backends (Vulkan, Metal, DX12, GLES) available for the build.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// BackendsLinked reports whether the hardware and software backends are part of the build.
const BackendsLinked = true

func softwareBackend() (hal.Backend, bool) {
	return software.API{}, true
}
