//go:build cgo

package gpu

import "github.com/gogpu/wgpu/hal"

// BackendsLinked reports whether the hardware and software backends are part of the build.
//
// They load the system GPU libraries with goffi (github.com/go-webgpu/goffi), which only builds with
// CGO_ENABLED=0. Builds with cgo, like the C shared library in cmd/libmtl, only have the noop backend: use
// package interp to run kernels there.
const BackendsLinked = false

func softwareBackend() (hal.Backend, bool) {
	return nil, false
}
