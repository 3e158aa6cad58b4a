// Package mtl implements the handle registry over a GPU compute runtime, and the protocol to build, submit and
// wait for compute dispatches.
//
// Every object (device, library, function, pipeline state, command queue, buffer, command buffer and command
// encoder) is referred to by an opaque handles.Handle, so that callers that cannot hold Go references (a C host,
// a scripting environment) can drive the runtime with integers only.
//
// Usage:
//
//	registry := mtl.NewRegistry(runtime)
//	defer registry.Close()
//	device, err := registry.DeviceAtIndex(0)
//	library, err := registry.NewLibrary(device, source)
//	function, err := registry.NewFunction(library, "square")
//	pipeline, err := registry.NewComputePipelineState(device, function)
//	...
//
// All operations return an *Error (see KindOf) on failure, and never panic on bad handles.
package mtl

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/gomtl/handles"
	"github.com/gomlx/gomtl/native"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
)

// Handle is an alias to handles.Handle, for convenience.
type Handle = handles.Handle

// InvalidHandleValue is the handle returned by failed operations.
const InvalidHandleValue = handles.Invalid

const numErrorKinds = int(InvalidState) + 1

// Option configures a Registry.
type Option func(*config)

type config struct {
	waitTimeout  time.Duration
	minFreeSlots int
	leakStack    bool
}

// WithWaitTimeout bounds every WaitForCompletion call, on top of its context. The default, 0, waits without
// a time limit.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.waitTimeout = timeout
	}
}

// WithMinFreeSlots sets how many freed handle slots each table keeps before reusing them.
// See handles.WithMinFreeSlots.
func WithMinFreeSlots(n int) Option {
	return func(c *config) {
		c.minFreeSlots = n
	}
}

// WithLeakStack records the stack where the Registry is created, to be logged if it is garbage collected
// without being closed. Used for debugging.
func WithLeakStack(withStack bool) Option {
	return func(c *config) {
		c.leakStack = withStack
	}
}

// Registry holds one handle table per object kind, over one runtime.
//
// A Registry is safe for concurrent use: each table has its own lock, so operations on different kinds of
// objects don't contend.
type Registry struct {
	runtime native.Runtime
	config  config

	// Devices are enumerated once, and their records are kept so identity is preserved across enumerations.
	devicesMu     sync.Mutex
	deviceList    []*device
	devicesLoaded bool
	devicesErr    error

	devices         *handles.Table[*device]
	libraries       *handles.Table[*library]
	functions       *handles.Table[*function]
	pipelineStates  *handles.Table[*pipelineState]
	commandQueues   *handles.Table[*commandQueue]
	buffers         *handles.Table[*buffer]
	commandBuffers  *handles.Table[*commandBuffer]
	commandEncoders *handles.Table[*commandEncoder]

	inflight          sync.WaitGroup
	closed            atomic.Bool
	leak              *leakCheck
	errorCounts       [numErrorKinds]atomic.Int64
	completionSeconds prometheus.Histogram
}

// NewRegistry creates a Registry over the given runtime. The Registry owns the runtime: Close closes it.
func NewRegistry(runtime native.Runtime, options ...Option) *Registry {
	r := &Registry{
		runtime: runtime,
		config:  config{minFreeSlots: handles.DefaultMinFreeSlots},
	}
	for _, opt := range options {
		opt(&r.config)
	}
	tableOpts := []handles.Option{handles.WithMinFreeSlots(r.config.minFreeSlots)}
	r.devices = handles.NewTable(handles.KindDevice, r.releaseDevice, tableOpts...)
	r.libraries = handles.NewTable(handles.KindLibrary, releaseLibrary, tableOpts...)
	r.functions = handles.NewTable(handles.KindFunction, releaseFunction, tableOpts...)
	r.pipelineStates = handles.NewTable(handles.KindPipelineState, releasePipelineState, tableOpts...)
	r.commandQueues = handles.NewTable(handles.KindCommandQueue, releaseCommandQueue, tableOpts...)
	r.buffers = handles.NewTable(handles.KindBuffer, releaseBuffer, tableOpts...)
	r.commandBuffers = handles.NewTable(handles.KindCommandBuffer, releaseCommandBuffer, tableOpts...)
	r.commandEncoders = handles.NewTable(handles.KindCommandEncoder, releaseCommandEncoder, tableOpts...)
	r.completionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "command_buffer_completion_seconds",
		Help:      "Time from commit to completion of command buffers.",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
	})
	r.leak = trackLeaks(r, r.config.leakStack)
	return r
}

// Runtime returns the runtime the registry was created with.
func (r *Registry) Runtime() native.Runtime {
	return r.runtime
}

// Close frees every live handle, waits for committed work to complete, and closes the runtime.
// It is a no-op if called more than once.
func (r *Registry) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.leak.closed.Store(true)
	// Dependents first.
	released := r.commandEncoders.Clear()
	released += r.commandBuffers.Clear()
	released += r.buffers.Clear()
	released += r.commandQueues.Clear()
	released += r.pipelineStates.Clear()
	released += r.functions.Clear()
	released += r.libraries.Clear()
	released += r.devices.Clear()
	r.inflight.Wait()
	klog.V(1).Infof("mtl.Registry closed: %d objects released", released)
	if err := r.runtime.Close(); err != nil {
		return errors.WithMessagef(err, "failed to close runtime %q", r.runtime.Name())
	}
	return nil
}

// LiveHandles returns the number of live handles of the given kind.
func (r *Registry) LiveHandles(kind handles.Kind) int {
	switch kind {
	case handles.KindDevice:
		return r.devices.Len()
	case handles.KindLibrary:
		return r.libraries.Len()
	case handles.KindFunction:
		return r.functions.Len()
	case handles.KindPipelineState:
		return r.pipelineStates.Len()
	case handles.KindCommandQueue:
		return r.commandQueues.Len()
	case handles.KindBuffer:
		return r.buffers.Len()
	case handles.KindCommandBuffer:
		return r.commandBuffers.Len()
	case handles.KindCommandEncoder:
		return r.commandEncoders.Len()
	default:
		return 0
	}
}

// lease delays the release of a native object while committed or recorded work still uses it.
//
// The object's handles may all be freed (drop) while it is held: the release then happens when the last holder
// lets go.
type lease struct {
	mu      sync.Mutex
	holders int
	dropped bool
	release func()
}

func newLease(release func()) *lease {
	return &lease{release: release}
}

// hold returns false if the object was already dropped.
func (l *lease) hold() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dropped {
		return false
	}
	l.holders++
	return true
}

func (l *lease) letGo() {
	l.mu.Lock()
	l.holders--
	releaseNow := l.holders == 0 && l.dropped
	l.mu.Unlock()
	if releaseNow {
		l.release()
	}
}

// drop is called when the last handle is freed. It returns whether the release was deferred.
func (l *lease) drop() (deferred bool) {
	l.mu.Lock()
	l.dropped = true
	deferred = l.holders > 0
	l.mu.Unlock()
	if !deferred {
		l.release()
	}
	return deferred
}

func (l *lease) isDropped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func letGoAll(leases []*lease) {
	for _, l := range leases {
		l.letGo()
	}
}
