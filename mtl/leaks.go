package mtl

import (
	"runtime"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// leakCheck reports a Registry garbage collected without Close: its native objects and runtime were never
// released.
//
// The cleanup can't free them itself, since it can't reference the Registry.
type leakCheck struct {
	runtimeName string
	closed      atomic.Bool
	stack       []byte
}

// trackLeaks attaches a leakCheck to r. If withStack is set, it also stores the stack of where r was created.
func trackLeaks(r *Registry, withStack bool) *leakCheck {
	leak := &leakCheck{runtimeName: r.runtime.Name()}
	if withStack {
		buf := make([]byte, 10*1024)
		n := runtime.Stack(buf, false)
		leak.stack = buf[:n]
	}
	runtime.AddCleanup(r, func(leak *leakCheck) {
		if leak.closed.Load() {
			return
		}
		if leak.stack == nil {
			klog.Errorf("mtl.Registry over %q garbage collected without Close: its GPU objects were leaked", leak.runtimeName)
		} else {
			klog.Errorf("mtl.Registry over %q garbage collected without Close: its GPU objects were leaked. Created at:\n%s\n",
				leak.runtimeName, leak.stack)
		}
	}, leak)
	return leak
}
